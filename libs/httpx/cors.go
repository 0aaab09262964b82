package httpx

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CORSPolicy describes which browser origins may call the API.
// Origins may be exact ("https://app.example.com"), a subdomain wildcard
// ("https://*.example.com"), or "*".
type CORSPolicy struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

var (
	defaultCORSMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	defaultCORSHeaders = []string{"Authorization", "Content-Type", RequestIDHeader}
)

// WithCORS is a no-op when no origins are configured.
func WithCORS(cfg CORSPolicy) Middleware {
	origins := trimAll(cfg.AllowedOrigins)
	if len(origins) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	methods := trimAll(cfg.AllowedMethods)
	if len(methods) == 0 {
		methods = defaultCORSMethods
	}
	allowHeaders := trimAll(cfg.AllowedHeaders)
	if len(allowHeaders) == 0 {
		allowHeaders = defaultCORSHeaders
	}
	methodList := strings.Join(methods, ", ")
	headerList := strings.Join(allowHeaders, ", ")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			allow, ok := "", false
			if origin != "" {
				allow, ok = allowedOrigin(origin, origins, cfg.AllowCredentials)
			}
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", allow)
			h.Set("Access-Control-Allow-Methods", methodList)
			h.Set("Access-Control-Allow-Headers", headerList)
			h.Set("Access-Control-Expose-Headers", RequestIDHeader)
			if cfg.AllowCredentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}
			if cfg.MaxAge > 0 {
				h.Set("Access-Control-Max-Age", strconv.Itoa(int(cfg.MaxAge.Seconds())))
			}
			h.Add("Vary", "Origin")

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func trimAll(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// allowedOrigin echoes the request origin unless "*" may be sent verbatim;
// browsers reject "*" on credentialed requests.
func allowedOrigin(origin string, allowed []string, credentials bool) (string, bool) {
	for _, pattern := range allowed {
		switch {
		case pattern == "*":
			if credentials {
				return origin, true
			}
			return "*", true
		case strings.EqualFold(pattern, origin):
			return origin, true
		case wildcardMatch(pattern, origin):
			return origin, true
		}
	}
	return "", false
}

func wildcardMatch(pattern, origin string) bool {
	scheme, rest, ok := strings.Cut(pattern, "://*.")
	if !ok {
		return false
	}
	prefix := strings.ToLower(scheme) + "://"
	o := strings.ToLower(origin)
	if !strings.HasPrefix(o, prefix) {
		return false
	}
	host := strings.TrimPrefix(o, prefix)
	return strings.HasSuffix(host, "."+strings.ToLower(rest))
}
