package httpx

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CORSPolicy describes which browser origins may call the API.
type CORSPolicy struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// APICORS is the policy for the operations dashboard. origins is a comma
// separated list; "*" allows any origin.
func APICORS(origins string) CORSPolicy {
	return CORSPolicy{
		AllowedOrigins:   strings.Split(origins, ","),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders:   []string{"Authorization", "Content-Type", RequestIDHeader, "X-Correlation-Id"},
		ExposedHeaders:   []string{RequestIDHeader, "X-Correlation-Id", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           10 * time.Minute,
	}
}

type corsHeaders struct {
	any         bool
	origins     map[string]struct{}
	credentials bool
	methods     string
	headers     string
	exposed     string
	maxAge      string
}

func (p CORSPolicy) compile() corsHeaders {
	c := corsHeaders{
		origins:     map[string]struct{}{},
		credentials: p.AllowCredentials,
		methods:     joinTrimmed(append(append([]string{}, p.AllowedMethods...), http.MethodOptions)),
		headers:     joinTrimmed(p.AllowedHeaders),
		exposed:     joinTrimmed(p.ExposedHeaders),
	}
	for _, o := range p.AllowedOrigins {
		o = strings.ToLower(strings.TrimSpace(o))
		switch o {
		case "":
		case "*":
			c.any = true
		default:
			c.origins[o] = struct{}{}
		}
	}
	if p.MaxAge > 0 {
		c.maxAge = strconv.Itoa(int(p.MaxAge.Seconds()))
	}
	return c
}

// allow returns the Access-Control-Allow-Origin value for origin. A wildcard
// policy echoes the origin when credentials are allowed.
func (c corsHeaders) allow(origin string) (string, bool) {
	if origin == "" {
		return "", false
	}
	if _, ok := c.origins[strings.ToLower(origin)]; ok {
		return origin, true
	}
	if c.any {
		if c.credentials {
			return origin, true
		}
		return "*", true
	}
	return "", false
}

// WithCORS answers preflight requests and decorates responses for allowed
// origins. A policy without origins disables CORS entirely.
func WithCORS(p CORSPolicy) Middleware {
	c := p.compile()
	if !c.any && len(c.origins) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Add("Vary", "Origin")

			allowOrigin, ok := c.allow(r.Header.Get("Origin"))
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			h.Set("Access-Control-Allow-Origin", allowOrigin)
			if c.credentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}
			if c.exposed != "" {
				h.Set("Access-Control-Expose-Headers", c.exposed)
			}

			preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""
			if !preflight {
				next.ServeHTTP(w, r)
				return
			}
			h.Set("Access-Control-Allow-Methods", c.methods)
			if c.headers != "" {
				h.Set("Access-Control-Allow-Headers", c.headers)
			}
			if c.maxAge != "" {
				h.Set("Access-Control-Max-Age", c.maxAge)
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}
}

func joinTrimmed(values []string) string {
	out := make([]string, 0, len(values))
	seen := map[string]bool{}
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return strings.Join(out, ", ")
}
