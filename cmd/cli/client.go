package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const mediaType = "application/vnd.api+json"

// client talks JSON:API to the auth server.
type client struct {
	base   string
	appKey string
	http   *http.Client
}

func newClient(base, appKey string) *client {
	return &client{
		base:   strings.TrimRight(base, "/"),
		appKey: appKey,
		http:   &http.Client{Timeout: 15 * time.Second},
	}
}

// apiError is a decoded error document.
type apiError struct {
	Code             string `json:"code"`
	Status           int    `json:"status"`
	Title            string `json:"title"`
	Detail           string `json:"detail"`
	SuggestedActions string `json:"suggestedActions"`
}

func (e *apiError) Error() string {
	msg := fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Title)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

type resource struct {
	Type       string          `json:"type"`
	ID         string          `json:"id"`
	Attributes json.RawMessage `json:"attributes"`
}

type tokenAttrs struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type messageAttrs struct {
	Message string `json:"message"`
}

// do sends attrs (if non-nil) wrapped as {"data":{"type":typ,"attributes":...}}
// and decodes the "data" member of the reply into out.
func (c *client) do(ctx context.Context, method, path, bearer, typ string, attrs, out any) error {
	var body io.Reader
	if attrs != nil {
		b, err := json.Marshal(map[string]any{"data": map[string]any{"type": typ, "attributes": attrs}})
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", mediaType)
	if body != nil {
		req.Header.Set("Content-Type", mediaType)
	}
	if c.appKey != "" {
		req.Header.Set("token", c.appKey)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		e := &apiError{Status: resp.StatusCode}
		if json.Unmarshal(raw, e) != nil || e.Code == "" {
			e.Title = strings.TrimSpace(string(raw))
		}
		return e
	}
	if out == nil {
		return nil
	}
	var doc struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return json.Unmarshal(doc.Data, out)
}

func (c *client) register(ctx context.Context, email, password string) (string, error) {
	var res resource
	err := c.do(ctx, http.MethodPost, "/api/v1/register", "", "user",
		map[string]string{"email": email, "password": password}, &res)
	return res.ID, err
}

func (c *client) login(ctx context.Context, email, password, deviceID, deviceType string) (tokenAttrs, error) {
	return c.tokens(ctx, "/api/v1/login", map[string]string{
		"email":       email,
		"password":    password,
		"device_id":   deviceID,
		"device_type": deviceType,
	})
}

func (c *client) refresh(ctx context.Context, refreshToken string) (tokenAttrs, error) {
	return c.tokens(ctx, "/api/v1/refresh_token", map[string]string{"refresh_token": refreshToken})
}

func (c *client) tokens(ctx context.Context, path string, attrs map[string]string) (tokenAttrs, error) {
	var res resource
	var tk tokenAttrs
	if err := c.do(ctx, http.MethodPost, path, "", "session", attrs, &res); err != nil {
		return tk, err
	}
	err := json.Unmarshal(res.Attributes, &tk)
	return tk, err
}

func (c *client) message(ctx context.Context, path, bearer string) (string, error) {
	var res resource
	if err := c.do(ctx, http.MethodPost, path, bearer, "", nil, &res); err != nil {
		return "", err
	}
	var m messageAttrs
	err := json.Unmarshal(res.Attributes, &m)
	return m.Message, err
}

func (c *client) sessions(ctx context.Context, bearer string) ([]map[string]any, error) {
	var list []resource
	if err := c.do(ctx, http.MethodGet, "/api/v1/sessions", bearer, "", nil, &list); err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(list))
	for _, r := range list {
		m := map[string]any{}
		if err := json.Unmarshal(r.Attributes, &m); err != nil {
			return nil, err
		}
		m["id"] = r.ID
		out = append(out, m)
	}
	return out, nil
}
