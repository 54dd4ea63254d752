package routes

import (
	"net/http"
	"os"
	"path"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mbolis/leadbox/app"
	"github.com/mbolis/leadbox/log"
	"github.com/mbolis/leadbox/routes/middlewares"
)

func Wire(app app.App) http.Handler {
	root := chi.NewRouter()
	root.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: log.Logger, NoColor: true}),
		middleware.Recoverer,
		middlewares.VisitorSession(app.Sessions),
	)

	root.Mount("/api", apiRouter(app))

	root.
		With(middlewares.CookieAuth(app.BearerServer), middlewares.Admin(app.TokenSecret)).
		Mount("/admin", servePrivateFiles(app.PrivateDir, "/admin"))
	root.
		With(middlewares.CountPageViews(app.Visits)).
		Mount("/", servePublicFiles(app.PublicDir))

	return root
}

func apiRouter(app app.App) http.Handler {
	api := chi.NewRouter()
	if app.MaxBodyBytes > 0 {
		api.Use(middleware.RequestSize(app.MaxBodyBytes))
	}
	api.Use(middleware.NoCache)

	limiter := middlewares.NewRateLimiter(app.SubmitInterval, nil)

	api.Get("/health", Health)

	api.With(limiter.Handler).Post("/submissions", SubmitForm(app))
	api.With(limiter.Handler).Post("/forms/{formType}", SubmitForm(app))

	api.Get("/visits", GetVisitCounter(app))
	api.Post("/visits", CountVisit(app))

	api.Post("/emi", CalculateEMI)

	api.Post("/login", Login(app))
	api.Post("/refresh", Refresh(app))

	api.Route("/admin", func(r chi.Router) {
		r.Use(middlewares.Admin(app.TokenSecret))

		r.Get("/submissions", ListSubmissions(app))
		r.Get("/submissions/{id}", GetSubmissionById(app))
		r.Delete("/submissions/{id}", DeleteSubmission(app))

		r.Get("/stats", GetStats(app))

		r.Get("/visits", GetVisitCounter(app))
		r.Post("/visits/reset", ResetVisitCounter(app))

		r.Post("/logout", Logout(app))
	})

	return api
}

func servePublicFiles(dir string) http.Handler {
	return spaFileServer(dir)
}

func servePrivateFiles(dir, prefix string) http.Handler {
	return http.StripPrefix(prefix, spaFileServer(dir))
}

// spaFileServer serves files from dir, falling back to index.html for paths
// without a file so that client-side routes resolve.
func spaFileServer(dir string) http.Handler {
	files := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := path.Clean("/" + r.URL.Path)
		if path.Ext(p) == "" {
			_, err := os.Stat(filepath.Join(dir, filepath.FromSlash(p)))
			if err != nil {
				http.ServeFile(w, r, filepath.Join(dir, "index.html"))
				return
			}
		}
		files.ServeHTTP(w, r)
	})
}
