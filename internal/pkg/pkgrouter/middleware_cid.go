package pkgrouter

import (
	"net/http"
	"strings"
	"unicode"

	"github.com/shandysiswandi/gostage/internal/pkg/pkglog"
)

// Generator mints correlation ids for requests that arrive without one.
type Generator interface {
	Generate() string
}

const (
	// HeaderCorrelationID carries the id that ties a request to its logs,
	// its trace span and the notices it causes. It is echoed on every response.
	HeaderCorrelationID = "X-Correlation-ID"
	// HeaderRequestID is read when a proxy set it instead.
	HeaderRequestID = "X-Request-ID"

	maxCIDLen = 128
)

// correlationHeaders are consulted in order.
var correlationHeaders = []string{HeaderCorrelationID, HeaderRequestID}

// normalizeCID trims v and drops it when it holds control characters, so a
// client cannot split log lines or response headers with it.
func normalizeCID(v string) string {
	v = strings.TrimSpace(v)
	if strings.IndexFunc(v, unicode.IsControl) >= 0 {
		return ""
	}
	if len(v) > maxCIDLen {
		v = v[:maxCIDLen]
	}
	return v
}

func incomingCID(h http.Header) string {
	for _, name := range correlationHeaders {
		if cid := normalizeCID(h.Get(name)); cid != "" {
			return cid
		}
	}
	return ""
}

func middlewareCorrelationID(gen Generator) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cid := incomingCID(r.Header)
			if cid == "" && gen != nil {
				cid = gen.Generate()
			}
			if cid == "" {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set(HeaderCorrelationID, cid)
			next.ServeHTTP(w, r.WithContext(pkglog.SetCorrelationID(r.Context(), cid)))
		})
	}
}
