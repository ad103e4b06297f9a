package ratelimit

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ClientIP returns the first X-Forwarded-For entry, else the peer host.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func Key(ip, path string) string {
	return "ratelimit:" + ip + ":" + path
}

type rejection struct {
	Error         string `json:"error"`
	RetryAfter    int    `json:"retry_after"`
	Limit         int    `json:"limit"`
	WindowSeconds int    `json:"window_seconds"`
}

// Middleware admits or rejects each request. classify reports the caller's
// class and must not fail; unauthenticated callers are ClassAnonymous.
func Middleware(l *Limiter, p Policy, classify func(*http.Request) Class) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			class := ClassAnonymous
			if classify != nil {
				class = classify(r)
			}
			limit := p.Limit(r.URL.Path, class)
			d := l.Check(r.Context(), Key(ClientIP(r), r.URL.Path), limit)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			if d.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			retry := int((d.RetryAfter + time.Second - 1) / time.Second)
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(rejection{
				Error:         "rate limit exceeded",
				RetryAfter:    retry,
				Limit:         d.Limit,
				WindowSeconds: int(l.Window() / time.Second),
			})
		})
	}
}
