package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"

	"github.com/mbolis/leadbox/app"
	"github.com/mbolis/leadbox/auth"
	"github.com/mbolis/leadbox/config"
	"github.com/mbolis/leadbox/httpx"
	"github.com/mbolis/leadbox/log"
	"github.com/mbolis/leadbox/routes"
	"github.com/mbolis/leadbox/routes/middlewares"
)

// openBackend is swapped out by tests.
var openBackend = app.OpenBackend

func main() {
	if err := run(os.Args[1:], runServer); err != nil {
		log.Fatal(err)
	}
	log.Info("Server stopped")
}

// run owns every resource it opens, so the backend is closed on all exit
// paths before main decides whether to exit non-zero.
func run(args []string, serve func(config.Config, http.Handler) error) error {
	cfg, err := config.ParseFlags(args)
	if err != nil {
		return errors.Wrap(err, "main.config")
	}
	if err := log.SetFormat(cfg.LogFormat); err != nil {
		return errors.Wrap(err, "main.log_format")
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}

	backend, err := openBackend(cfg.StorageConfig)
	if err != nil {
		return errors.Wrap(err, "main.storage.open")
	}
	defer func() {
		if err := backend.Close(); err != nil {
			log.Error("main.storage.close:", err)
		}
	}()

	submissions, visits, err := app.OpenStores(backend)
	if err != nil {
		return errors.Wrap(err, "main.storage.load")
	}

	admin, err := auth.NewCredential(cfg.AdminUser, cfg.AdminPassword, cfg.AdminPasswordHash)
	if err != nil {
		return errors.Wrap(err, "main.admin")
	}
	tokens := auth.NewTokenRegistry(httpx.RefreshTTL, nil)

	app := app.App{
		Submissions:  submissions,
		Visits:       visits,
		Admin:        admin,
		Tokens:       tokens,
		Sessions:     middlewares.NewVisitorStore([]byte(cfg.SessionKey), false),
		BearerServer: httpx.NewBearerServer(cfg.TokenSecret, cfg.TokenTTL, admin, tokens),
		Config:       cfg,
	}

	err = serve(cfg, routes.Wire(app))
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "main.server")
	}
	return nil
}

func runServer(cfg config.Config, handler http.Handler) error {
	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	errc := make(chan error, 1)
	go func() {
		log.Info("Listening on " + cfg.Url())
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-stop:
	}

	log.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
