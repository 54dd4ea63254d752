package httpx

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/oauth"

	"github.com/mbolis/leadbox/auth"
	"github.com/mbolis/leadbox/log"
)

// RefreshTTL bounds how long an issued refresh token can be exchanged.
const RefreshTTL = 30 * 24 * time.Hour

var ErrInvalidCredentials = errors.New("invalid credentials")

type credentialsVerifier struct {
	admin  *auth.Credential
	tokens *auth.TokenRegistry
}

func CredentialsVerifier(admin *auth.Credential, tokens *auth.TokenRegistry) oauth.CredentialsVerifier {
	return &credentialsVerifier{admin, tokens}
}

func NewBearerServer(secret string, ttl time.Duration, admin *auth.Credential, tokens *auth.TokenRegistry) *oauth.BearerServer {
	return oauth.NewBearerServer(secret, ttl, CredentialsVerifier(admin, tokens), nil)
}

func (cv *credentialsVerifier) ValidateUser(username string, password string, scope string, r *http.Request) error {
	if !cv.admin.Validate(username, password) {
		log.Warnf("login.invalid_credentials: %q from %s", username, r.RemoteAddr)
		return ErrInvalidCredentials
	}
	log.Infof("login.ok: %s", username)
	return nil
}
func (cv *credentialsVerifier) StoreTokenID(tokenType oauth.TokenType, credential string, tokenID string, refreshTokenID string) error {
	cv.tokens.Store(credential, tokenID, refreshTokenID)
	return nil
}
func (cv *credentialsVerifier) ValidateTokenID(tokenType oauth.TokenType, credential string, tokenID string, refreshTokenID string) error {
	return cv.tokens.Consume(credential, tokenID, refreshTokenID)
}
func (*credentialsVerifier) AddClaims(tokenType oauth.TokenType, credential string, tokenID string, scope string, r *http.Request) (map[string]string, error) {
	return map[string]string{"roles": "admin"}, nil
}
func (*credentialsVerifier) AddProperties(tokenType oauth.TokenType, credential string, tokenID string, scope string, r *http.Request) (map[string]string, error) {
	return map[string]string{"username": credential}, nil
}
func (*credentialsVerifier) ValidateClient(clientID string, clientSecret string, scope string, r *http.Request) error {
	return errors.New("not supported")
}
