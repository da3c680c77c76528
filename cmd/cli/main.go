// Command authctl is a CLI client for the autorizador HTTP API.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
)

// ---- token store ----

type tokenFile struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	DeviceID     string    `json:"device_id"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "authctl")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "authctl")
}

func tokenPath() string { return filepath.Join(cfgDir(), "tokens.json") }

func saveTokens(tf tokenFile) error {
	if err := os.MkdirAll(cfgDir(), 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(tf, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(tokenPath(), b, 0o600)
}

func loadTokens() (tokenFile, error) {
	var tf tokenFile
	b, err := os.ReadFile(tokenPath())
	if err != nil {
		return tf, err
	}
	err = json.Unmarshal(b, &tf)
	return tf, err
}

// accessToken returns the stored access token if it has not expired.
func accessToken() (string, error) {
	tf, err := loadTokens()
	if err != nil {
		return "", err
	}
	if tf.AccessToken == "" || time.Now().After(tf.ExpiresAt) {
		return "", errors.New("no valid access token (run login or refresh)")
	}
	return tf.AccessToken, nil
}

// deviceID returns the persisted device id, minting one on first use.
func deviceID() string {
	if tf, err := loadTokens(); err == nil && tf.DeviceID != "" {
		return tf.DeviceID
	}
	return uuid.Must(uuid.NewV4()).String()
}

// accessExpiry reads exp from an access token without verifying it.
func accessExpiry(tok string) time.Time {
	var claims jwt.RegisteredClaims
	_, _, err := jwt.NewParser().ParseUnverified(tok, &claims)
	if err != nil || claims.ExpiresAt == nil {
		return time.Now().Add(15 * time.Minute)
	}
	return claims.ExpiresAt.Time
}

func storePair(tk tokenAttrs, device string) error {
	return saveTokens(tokenFile{
		AccessToken:  tk.AccessToken,
		RefreshToken: tk.RefreshToken,
		ExpiresAt:    accessExpiry(tk.AccessToken),
		DeviceID:     device,
	})
}

// ---- utils ----

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func usage() {
	fmt.Fprintf(os.Stderr, `authctl CLI
Usage:
  authctl [-addr URL] [-app-key KEY] <cmd> [args]

Commands:
  version
  register    -e <email> -p <password>
  login       -e <email> -p <password> [-type <device type>]   (saves tokens)
  refresh                                                      (rotates saved refresh token)
  logout
  logout-all
  sessions
`)
	os.Exit(2)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

// ---- main ----

var (
	version   = "dev"
	buildDate = "unknown"
)

// credentials parses the -e/-p pair shared by register and login.
func credentials(name string, args []string) (email, password, devType string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	e := fs.String("e", "", "email")
	p := fs.String("p", "", "password")
	t := fs.String("type", "cli", "device type")
	_ = fs.Parse(args)
	if *e == "" || *p == "" {
		fmt.Fprintln(os.Stderr, "need -e and -p")
		os.Exit(1)
	}
	return *e, *p, *t
}

func main() {
	addr := flag.String("addr", envOr("AUTHCTL_ADDR", "http://localhost:8080"), "server base URL")
	appKey := flag.String("app-key", os.Getenv("AUTHCTL_APP_KEY"), "application key (token header)")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd, args := flag.Arg(0), flag.Args()[1:]

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := dispatch(ctx, newClient(*addr, *appKey), cmd, args); err != nil {
		fail(err)
	}
}

func dispatch(ctx context.Context, c *client, cmd string, args []string) error {
	switch cmd {
	case "version":
		fmt.Printf("authctl %s (%s)\n", version, buildDate)

	case "register":
		e, p, _ := credentials("register", args)
		id, err := c.register(ctx, e, p)
		if err != nil {
			return err
		}
		fmt.Println(id)

	case "login":
		e, p, t := credentials("login", args)
		dev := deviceID()
		tk, err := c.login(ctx, e, p, dev, t)
		if err != nil {
			return err
		}
		if err := storePair(tk, dev); err != nil {
			return err
		}
		fmt.Println("ok")

	case "refresh":
		tf, err := loadTokens()
		if err != nil || tf.RefreshToken == "" {
			return errors.New("no refresh token (login required)")
		}
		tk, err := c.refresh(ctx, tf.RefreshToken)
		if err != nil {
			return err
		}
		if err := storePair(tk, tf.DeviceID); err != nil {
			return err
		}
		fmt.Println("ok")

	case "logout", "logout-all":
		tok, err := accessToken()
		if err != nil {
			return err
		}
		path := "/api/v1/logout"
		if cmd == "logout-all" {
			path = "/api/v1/logout_all"
		}
		msg, err := c.message(ctx, path, tok)
		if err != nil {
			return err
		}
		tf, _ := loadTokens()
		if err := saveTokens(tokenFile{DeviceID: tf.DeviceID}); err != nil {
			return err
		}
		fmt.Println(msg)

	case "sessions":
		tok, err := accessToken()
		if err != nil {
			return err
		}
		list, err := c.sessions(ctx, tok)
		if err != nil {
			return err
		}
		printJSON(list)

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
