package httpserver

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Ivan-Madera/autorizador/internal/errs"
	"github.com/Ivan-Madera/autorizador/internal/model"
	"github.com/Ivan-Madera/autorizador/internal/server/authctx"
	"github.com/Ivan-Madera/autorizador/internal/service"
)

// Pinger reports backing-store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options tune the transport layer.
type Options struct {
	// AppKey, when set, must be sent in the "token" header of every API call.
	AppKey string
	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	TrustProxy bool
	// Env is reported by the base route.
	Env string
}

// Handler serves the JSON:API endpoints over the lifecycle engine.
type Handler struct {
	auth   service.AuthService
	health Pinger
	log    *zap.Logger
	opts   Options
}

// NewHandler constructs the HTTP adapter. health may be nil.
func NewHandler(auth service.AuthService, health Pinger, log *zap.Logger, opts Options) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{auth: auth, health: health, log: log, opts: opts}
}

type credentialsAttrs struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginAttrs struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	DeviceID   string `json:"device_id"`
	DeviceType string `json:"device_type"`
}

type refreshAttrs struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type sessionView struct {
	DeviceID   string     `json:"device_id"`
	DeviceType *string    `json:"device_type"`
	IP         *string    `json:"ip"`
	UserAgent  *string    `json:"user_agent"`
	State      string     `json:"state"`
	Current    bool       `json:"current"`
	ExpiresAt  time.Time  `json:"expires_at"`
	RevokedAt  *time.Time `json:"revoked_at"`
	CreatedAt  time.Time  `json:"created_at"`
}

// fail writes the failure document for err. Internal causes are logged,
// never sent.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	h.reject(w, r, op, errs.AsFailure(err), err)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request, op string, f *errs.Failure, cause error) {
	status := statusFor(f.Kind)
	if status >= 500 {
		h.log.Error("request failed", zap.String("op", op), zap.Error(cause))
	}
	writeFailure(w, r, status, f)
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	in, f := decodeEnvelope[credentialsAttrs](w, r)
	if f == nil {
		f = requireFields([2]string{"email", in.Email}, [2]string{"password", in.Password})
	}
	if f != nil {
		writeFailure(w, r, statusFor(f.Kind), f)
		return
	}

	out := errs.Resolve(h.auth.Register(r.Context(), in.Email, in.Password))
	if !out.OK() {
		h.reject(w, r, "register", out.Failure, out.Cause)
		return
	}
	writeData(w, http.StatusOK, newResource(r, "user", out.Value, messageAttributes{Message: "User registered successfully"}))
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	in, f := decodeEnvelope[loginAttrs](w, r)
	if f == nil {
		f = requireFields(
			[2]string{"email", in.Email},
			[2]string{"password", in.Password},
			[2]string{"device_id", in.DeviceID},
			[2]string{"device_type", in.DeviceType},
		)
	}
	if f != nil {
		writeFailure(w, r, statusFor(f.Kind), f)
		return
	}

	h.writeTokens(w, r, "login", errs.Resolve(h.auth.Login(r.Context(), service.LoginInput{
		Email:      in.Email,
		Password:   in.Password,
		DeviceID:   in.DeviceID,
		DeviceType: in.DeviceType,
		IP:         clientIP(r),
		UserAgent:  r.UserAgent(),
	})))
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	in, f := decodeEnvelope[refreshAttrs](w, r)
	if f == nil {
		f = requireFields([2]string{"refresh_token", in.RefreshToken})
	}
	if f != nil {
		writeFailure(w, r, statusFor(f.Kind), f)
		return
	}

	h.writeTokens(w, r, "refresh", errs.Resolve(h.auth.RefreshRotate(r.Context(), service.RefreshInput{
		RefreshToken: in.RefreshToken,
		IP:           clientIP(r),
		UserAgent:    r.UserAgent(),
	})))
}

func (h *Handler) writeTokens(w http.ResponseWriter, r *http.Request, op string, out errs.Outcome[model.Tokens]) {
	if !out.OK() {
		h.reject(w, r, op, out.Failure, out.Cause)
		return
	}
	tk := out.Value
	writeData(w, http.StatusOK, newResource(r, "session", tk.SessionID, tokenPair{
		AccessToken:  tk.AccessToken,
		RefreshToken: tk.RefreshToken,
	}))
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	id, _ := authctx.IdentityFromCtx(r.Context())
	if err := h.auth.Logout(r.Context(), id.SessionID); err != nil {
		h.fail(w, r, "logout", err)
		return
	}
	writeMessage(w, r, "session", "User logged out successfully")
}

func (h *Handler) logoutAll(w http.ResponseWriter, r *http.Request) {
	id, _ := authctx.IdentityFromCtx(r.Context())
	if _, err := h.auth.LogoutAll(r.Context(), id.UserID); err != nil {
		h.fail(w, r, "logout_all", err)
		return
	}
	writeMessage(w, r, "session", "All sessions have been closed successfully.")
}

func (h *Handler) sessions(w http.ResponseWriter, r *http.Request) {
	id, _ := authctx.IdentityFromCtx(r.Context())
	list, err := h.auth.Sessions(r.Context(), id.UserID)
	if err != nil {
		h.fail(w, r, "sessions", err)
		return
	}

	out := make([]resource, 0, len(list))
	for i := range list {
		s := &list[i]
		out = append(out, newResource(r, "session", s.ID, sessionView{
			DeviceID:   s.DeviceID,
			DeviceType: s.DeviceType,
			IP:         s.IP,
			UserAgent:  s.UserAgent,
			State:      string(s.State),
			Current:    s.ID == id.SessionID,
			ExpiresAt:  s.ExpiresAt,
			RevokedAt:  s.RevokedAt,
			CreatedAt:  s.CreatedAt,
		}))
	}
	writeData(w, http.StatusOK, out)
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.health.Ping(ctx); err != nil {
			h.log.Warn("health check failed", zap.Error(err))
			writeFailure(w, r, http.StatusServiceUnavailable, errs.Internal().WithDetail("database unavailable"))
			return
		}
	}
	writeMessage(w, r, "health", "ok")
}

func (h *Handler) root(w http.ResponseWriter, r *http.Request) {
	writeMessage(w, r, "service", "autorizador ("+h.opts.Env+")")
}
