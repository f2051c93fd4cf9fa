package middleware

import (
	"net/http"
	"net/url"
	"strings"
)

// Origins is a compiled list of allowed browser origins. Entries are exact
// origins ("https://app.example"), subdomain wildcards ("*.example.com") or
// "*" for any origin. The zero value allows nothing.
type Origins struct {
	any      bool
	exact    map[string]struct{}
	suffixes []string
}

// ParseOrigins compiles origin patterns. Matching is case-insensitive.
func ParseOrigins(patterns []string) Origins {
	o := Origins{exact: make(map[string]struct{}, len(patterns))}
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		switch {
		case p == "":
		case p == "*":
			o.any = true
		case strings.HasPrefix(p, "*."):
			o.suffixes = append(o.suffixes, p[1:])
		default:
			o.exact[strings.TrimSuffix(p, "/")] = struct{}{}
		}
	}
	return o
}

// Empty reports whether no pattern was configured.
func (o Origins) Empty() bool {
	return !o.any && len(o.exact) == 0 && len(o.suffixes) == 0
}

// Allows reports whether origin matches one of the patterns.
func (o Origins) Allows(origin string) bool {
	if o.any {
		return true
	}
	origin = strings.ToLower(origin)
	if _, ok := o.exact[origin]; ok {
		return true
	}
	if len(o.suffixes) == 0 {
		return false
	}
	u, err := url.Parse(origin)
	if err != nil || u.Hostname() == "" {
		return false
	}
	for _, s := range o.suffixes {
		if strings.HasSuffix(u.Hostname(), s) {
			return true
		}
	}
	return false
}

// CORS answers browser preflights for the health and websocket endpoints.
// keyHeader is the access key header, which browsers must be allowed to send.
func CORS(origins Origins, keyHeader string) func(http.Handler) http.Handler {
	headers := "Authorization, Content-Type, Sec-WebSocket-Protocol"
	if keyHeader != "" {
		headers += ", " + keyHeader
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			switch origin := r.Header.Get("Origin"); {
			case origins.any:
				h.Set("Access-Control-Allow-Origin", "*")
			case origin != "" && origins.Allows(origin):
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
			}
			h.Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			h.Set("Access-Control-Allow-Headers", headers)
			h.Set("Access-Control-Max-Age", "86400")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CheckOrigin returns a websocket origin check. With no origins configured,
// only same-host requests and requests without an Origin header pass.
func CheckOrigin(origins Origins) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if !origins.Empty() {
			return origins.Allows(origin)
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}
