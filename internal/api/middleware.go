package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/safar/go-shop/internal/apperr"
	"github.com/safar/go-shop/internal/auth"
	"github.com/safar/go-shop/internal/logging"
	"github.com/safar/go-shop/internal/ratelimit"
	"go.uber.org/zap"
)

var (
	errUnauthenticated = apperr.New(apperr.KindUnauthorized, "unauthorized", "authentication required")
	errAdminOnly       = apperr.New(apperr.KindForbidden, "forbidden", "admin role required")
)

// requestLogger stores a request-scoped logger in the context and logs one
// line per request once the handler returns.
func requestLogger(base *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			log := base.With(zap.String("request_id", middleware.GetReqID(r.Context())))
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r.WithContext(logging.ContextWithLogger(r.Context(), log)))

			log.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("client_ip", ratelimit.ClientIP(r)))
		})
	}
}

// optionalAuth attaches claims for a valid token and ignores anything else;
// route guards decide whether identity is required.
func optionalAuth(tokens *auth.JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token := auth.ExtractToken(r); token != "" {
				if claims, err := tokens.ValidateAccessToken(token); err == nil {
					r = r.WithContext(auth.WithClaims(r.Context(), claims))
					log := logging.FromContext(r.Context(), nil).With(zap.Int64("user_id", claims.UserID))
					r = r.WithContext(logging.ContextWithLogger(r.Context(), log))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.ClaimsFrom(r.Context()); !ok {
			respondError(w, r, errUnauthenticated)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := auth.ClaimsFrom(r.Context())
		if !ok {
			respondError(w, r, errUnauthenticated)
			return
		}
		if !claims.IsAdmin() {
			respondError(w, r, errAdminOnly)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func callerClass(r *http.Request) ratelimit.Class {
	claims, ok := auth.ClaimsFrom(r.Context())
	switch {
	case !ok:
		return ratelimit.ClassAnonymous
	case claims.IsAdmin():
		return ratelimit.ClassAdmin
	default:
		return ratelimit.ClassAuthenticated
	}
}

// caller is only valid behind requireAuth.
func caller(r *http.Request) *auth.Claims {
	claims, _ := auth.ClaimsFrom(r.Context())
	return claims
}
