package ratelimit

import (
	"strings"

	"github.com/safar/go-shop/internal/config"
)

type Class int

const (
	ClassAnonymous Class = iota
	ClassAuthenticated
	ClassAdmin
)

func (c Class) String() string {
	switch c {
	case ClassAuthenticated:
		return "authenticated"
	case ClassAdmin:
		return "admin"
	default:
		return "anonymous"
	}
}

// Policy picks the limit for a request. A route override always beats the
// caller's class default.
type Policy struct {
	defaults map[Class]int
	routes   map[string]int
}

func NewPolicy(cfg config.RateLimitConfig) Policy {
	routes := make(map[string]int, len(cfg.Routes))
	for route, limit := range cfg.Routes {
		routes[strings.TrimSuffix(route, "/")] = limit
	}
	return Policy{
		defaults: map[Class]int{
			ClassAnonymous:     cfg.Anonymous,
			ClassAuthenticated: cfg.Authenticated,
			ClassAdmin:         cfg.Admin,
		},
		routes: routes,
	}
}

// Limit matches overrides on whole path segments; the longest match wins, so
// an override on /api/v1/products also covers /api/v1/products/42.
func (p Policy) Limit(path string, class Class) int {
	path = strings.TrimSuffix(path, "/")
	best, limit := -1, 0
	for route, l := range p.routes {
		if path != route && !strings.HasPrefix(path, route+"/") {
			continue
		}
		if len(route) > best {
			best, limit = len(route), l
		}
	}
	if best >= 0 {
		return limit
	}
	return p.defaults[class]
}
