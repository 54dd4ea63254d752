package app

import (
	"github.com/go-chi/oauth"
	"github.com/gorilla/sessions"

	"github.com/mbolis/leadbox/auth"
	"github.com/mbolis/leadbox/config"
	"github.com/mbolis/leadbox/store"
)

type App struct {
	Submissions *store.SubmissionStore
	Visits      *store.VisitCounter
	Admin       *auth.Credential
	Tokens      *auth.TokenRegistry
	Sessions    sessions.Store
	*oauth.BearerServer
	config.Config
}
