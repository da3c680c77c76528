package httpserver

import (
	"crypto/subtle"
	"mime"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/Ivan-Madera/autorizador/internal/errs"
	"github.com/Ivan-Madera/autorizador/internal/server/authctx"
)

// accessLog logs request metadata only, never bodies or headers.
func accessLog(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("dur", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			}
			switch {
			case status >= 500:
				log.Error("http", fields...)
			case status >= 400:
				log.Warn("http", fields...)
			default:
				log.Info("http", fields...)
			}
		})
	}
}

// recoverer turns a panic into an InternalFailure document.
func recoverer(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					log.Error("panic",
						zap.Any("reason", rec),
						zap.ByteString("stack", debug.Stack()),
						zap.String("path", r.URL.Path),
						zap.String("request_id", middleware.GetReqID(r.Context())),
					)
					writeFailure(w, r, http.StatusInternalServerError, errs.Internal())
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// requireAppKey rejects requests whose "token" header differs from key.
// An empty key disables the check.
func requireAppKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if key == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get("token")
			if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				writeFailure(w, r, http.StatusUnauthorized, invalidAppKey())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requireMediaType accepts only application/vnd.api+json bodies.
func requireMediaType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || mt != MediaType {
			writeFailure(w, r, http.StatusUnsupportedMediaType, unsupportedContentType())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireBearer authenticates the access token and requires a live session.
func (h *Handler) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			writeFailure(w, r, http.StatusUnauthorized, missingBearer())
			return
		}
		id, err := h.auth.Authenticate(r.Context(), tok)
		if err != nil {
			if errs.KindOf(err) == errs.KindInvalidCredentials {
				writeFailure(w, r, http.StatusUnauthorized, invalidToken())
				return
			}
			h.fail(w, r, "authenticate", err)
			return
		}
		next.ServeHTTP(w, r.WithContext(authctx.WithIdentity(r.Context(), id)))
	})
}

func bearerToken(header string) (string, bool) {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	tok := strings.TrimSpace(header[len(prefix):])
	return tok, tok != ""
}

// clientIP returns the host part of RemoteAddr (rewritten by RealIP when
// proxies are trusted).
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
