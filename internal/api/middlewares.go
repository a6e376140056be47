package api

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5/request"

	"github.com/samandr77/microservices/identity/internal/entity"
	"github.com/samandr77/microservices/identity/pkg/logger"
)

type Middleware struct {
	s              Service
	apiKey         string
	onboardingPath string
}

func NewMiddleware(s Service, apiKey, onboardingPath string) *Middleware {
	return &Middleware{
		s:              s,
		apiKey:         apiKey,
		onboardingPath: onboardingPath,
	}
}

func (m *Middleware) Log(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ctx := logger.SetRequestID(r.Context(), uuid.Must(uuid.NewV4()).String())

		ctx = logger.SetMethod(ctx, r.Method)
		ctx = logger.SetURL(ctx, r.URL.Path)
		ctx = logger.SetUserAgent(ctx, r.UserAgent())
		ctx = logger.SetLogType(ctx, "webrequest")

		callerService := r.Header.Get("X-Service-Name")
		if callerService == "" {
			callerService = "unknown"
		}

		ctx = logger.SetCallerService(ctx, callerService)
		ctx = logger.SetIP(ctx, entity.IPFromCtx(ctx))
		ctx = entity.CtxWithUserAgent(ctx, r.UserAgent())

		slog.InfoContext(ctx, "incoming request")

		next.ServeHTTP(w, r.WithContext(ctx))

		slog.InfoContext(ctx, "request completed", "duration_ms", time.Since(start).Milliseconds())
	})
}

func (m *Middleware) Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func(ctx context.Context) {
			err := recover()
			if err != nil {
				slog.ErrorContext(ctx, "panic", "error", err, "stack", string(debug.Stack()))
				sendJSON(ctx, w, http.StatusInternalServerError, ResponseError{Message: errInternalText})
			}
		}(r.Context())

		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) WithIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := removePort(r.RemoteAddr)

		if xForwardedFor := r.Header.Get("X-Forwarded-For"); xForwardedFor != "" {
			for _, part := range strings.Split(xForwardedFor, ",") {
				part = removePort(strings.TrimSpace(part))
				if isValidIP(part) {
					ip = part
					break
				}
			}
		}

		if xRealIP := removePort(r.Header.Get("X-Real-IP")); isValidIP(xRealIP) {
			ip = xRealIP
		}

		if !isValidIP(ip) {
			slog.Warn("invalid IP detected, using fallback", "ip", ip, "remote_addr", r.RemoteAddr)
			ip = "unknown"
		}

		next.ServeHTTP(w, r.WithContext(entity.CtxWithIP(r.Context(), ip)))
	})
}

// Authenticate resolves the bearer access token and composes the principal
// from the current identity record.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		token, err := request.BearerExtractor{}.ExtractToken(r)
		if err != nil {
			sendErr(ctx, w, http.StatusUnauthorized, err, "Sign in to continue")
			return
		}

		claims, err := m.s.Authenticate(ctx, token)
		if err != nil {
			sendServiceErr(ctx, w, err)
			return
		}

		p := m.s.ComposeSession(ctx, claims)

		ctx = entity.CtxWithPrincipal(ctx, p)
		ctx = entity.CtxWithToken(ctx, token)
		ctx = logger.SetUserID(ctx, p.ID.String())

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole lets only principals with a selected role through. Pending
// principals are sent to the onboarding page.
func (m *Middleware) RequireRole(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		p, ok := entity.PrincipalFromCtx(ctx)
		if !ok {
			sendServiceErr(ctx, w, entity.ErrUnauthorized)
			return
		}

		if p.RequiresRoleSelection() {
			sendErrResponse(ctx, w, http.StatusForbidden, entity.ErrRoleRequired, ResponseError{
				Message:  "Choose a role to continue",
				Redirect: m.onboardingPath,
			})

			return
		}

		next.ServeHTTP(w, r)
	})
}

// StepUp accepts only a step-up token, the proof that the first factor passed.
func (m *Middleware) StepUp(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		token, err := request.BearerExtractor{}.ExtractToken(r)
		if err != nil {
			sendErr(ctx, w, http.StatusUnauthorized, err, "Sign in to continue")
			return
		}

		claims, err := m.s.ParseStepUp(token)
		if err != nil {
			sendServiceErr(ctx, w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(entity.CtxWithStepUp(ctx, claims)))
	})
}

// APIKeyAuth guards the internal routes. With no key configured they are closed.
func (m *Middleware) APIKeyAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logger.SetCallerService(r.Context(), r.Header.Get("X-Service-Name"))

		apiKey := r.Header.Get("X-Api-Key")
		if apiKey == "" {
			sendErr(ctx, w, http.StatusUnauthorized, nil, "Missing API key")
			return
		}

		if m.apiKey == "" || subtle.ConstantTimeCompare([]byte(apiKey), []byte(m.apiKey)) != 1 {
			ctx = logger.SetLogType(ctx, logger.LogTypeSecurity)
			sendErr(ctx, w, http.StatusUnauthorized, nil, "Wrong API key")

			return
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func removePort(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}

	return host
}

func isValidIP(ip string) bool {
	return ip != "" && net.ParseIP(ip) != nil
}
