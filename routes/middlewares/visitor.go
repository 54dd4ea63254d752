package middlewares

import (
	"context"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"

	"github.com/mbolis/leadbox/log"
	"github.com/mbolis/leadbox/store"
)

const (
	VisitorSessionName = "leadbox-visitor"
	visitorIDKey       = "id"
)

type visitorKey struct{}

// NewVisitorStore returns the cookie store backing visitor sessions.
func NewVisitorStore(key []byte, secure bool) *sessions.CookieStore {
	cs := sessions.NewCookieStore(key)
	cs.Options.Path = "/"
	cs.Options.HttpOnly = true
	cs.Options.Secure = secure
	cs.Options.SameSite = http.SameSiteLaxMode
	cs.Options.MaxAge = 0
	return cs
}

// VisitorSession makes sure every request carries a visitor id in a signed
// session cookie, and puts that id in the request context.
func VisitorSession(cs sessions.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, err := cs.Get(r, VisitorSessionName)
			if err != nil {
				log.Debugf("visitor.session: discarding invalid cookie: %s", err)
			}
			if session == nil {
				next.ServeHTTP(w, r)
				return
			}

			id, _ := session.Values[visitorIDKey].(string)
			if id == "" {
				id = uuid.NewString()
				session.Values[visitorIDKey] = id
				if err := session.Save(r, w); err != nil {
					log.Errorf("visitor.session.save: %s", err)
				}
			}

			ctx := context.WithValue(r.Context(), visitorKey{}, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func VisitorID(r *http.Request) string {
	id, _ := r.Context().Value(visitorKey{}).(string)
	return id
}

// CountPageViews increments the visit counter for the visitor session on
// every page view. API calls and static assets are not page views.
func CountPageViews(visits *store.VisitCounter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPageView(r) {
				if _, err := visits.IncrementForSession(VisitorID(r)); err != nil {
					log.Errorf("visitor.count: %s", err)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isPageView(r *http.Request) bool {
	if r.Method != http.MethodGet {
		return false
	}
	p := r.URL.Path
	if p == "/api" || strings.HasPrefix(p, "/api/") {
		return false
	}
	ext := path.Ext(p)
	return ext == "" || ext == ".html"
}
