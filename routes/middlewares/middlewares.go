package middlewares

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/oauth"
	"github.com/goccy/go-json"

	"github.com/mbolis/leadbox/httpx"
	"github.com/mbolis/leadbox/log"
)

const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"
)

// Admin checks for a valid bearer token carrying the 'admin' role.
func Admin(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return chi.Chain(oauth.Authorize(secret, nil), admin).Handler(next)
	}
}

func admin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, _ := r.Context().Value(oauth.ClaimsContext).(map[string]string)

		isAdmin := false
		for _, role := range strings.Split(claims["roles"], ",") {
			if strings.TrimSpace(role) == "admin" {
				isAdmin = true
				break
			}
		}

		if !isAdmin || AdminUsername(r) == "" {
			httpx.LogStatus(w, r, http.StatusForbidden, log.DebugLevel, "admin.forbidden")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// AdminUsername is the credential of the validated bearer token, empty when
// the request did not pass through Admin.
func AdminUsername(r *http.Request) string {
	username, _ := r.Context().Value(oauth.CredentialContext).(string)
	return username
}

// CookieAuth lets the dashboard pages authenticate with token cookies. An
// expired access token is renewed from the refresh token cookie; without a
// usable token the browser is sent to the login page.
func CookieAuth(bearerServer *oauth.BearerServer) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				h.ServeHTTP(w, r)
				return
			}

			if token, err := r.Cookie(AccessTokenCookie); err == nil {
				r.Header.Set("authorization", "Bearer "+token.Value)
				buf := httpx.NewResponseBuffer()
				h.ServeHTTP(buf, r)
				if buf.Status() != http.StatusUnauthorized {
					buf.Flush(w)
					return
				}
			}

			loginLocation := "/login?goto=" + url.QueryEscape(r.RequestURI)

			refreshToken, err := r.Cookie(RefreshTokenCookie)
			if err != nil {
				http.Redirect(w, r, loginLocation, http.StatusTemporaryRedirect)
				return
			}

			tokens, status := refresh(bearerServer, refreshToken.Value)
			switch {
			case status == http.StatusUnauthorized || status == http.StatusBadRequest:
				http.SetCookie(w, expiredCookie(RefreshTokenCookie))
				http.Redirect(w, r, loginLocation, http.StatusTemporaryRedirect)
				return
			case status != http.StatusOK:
				http.Error(w, http.StatusText(status), status)
				return
			}

			SetTokenCookies(w, tokens)
			r.Header.Set("authorization", "Bearer "+tokens.AccessToken)
			h.ServeHTTP(w, r)
		})
	}
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
}

func refresh(bearerServer *oauth.BearerServer, refreshToken string) (TokenResponse, int) {
	body := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}.Encode()

	req, err := http.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	if err != nil {
		return TokenResponse{}, http.StatusInternalServerError
	}
	req.Header.Set("content-type", "application/x-www-form-urlencoded")
	req.Header.Set("content-length", strconv.Itoa(len(body)))

	resp := httpx.NewResponseBuffer()
	bearerServer.UserCredentials(resp, req)
	if resp.Status() != http.StatusOK {
		return TokenResponse{}, resp.Status()
	}

	var tokens TokenResponse
	if err := json.Unmarshal(resp.Body(), &tokens); err != nil || tokens.AccessToken == "" {
		return TokenResponse{}, http.StatusInternalServerError
	}
	return tokens, http.StatusOK
}

func SetTokenCookies(w http.ResponseWriter, tokens TokenResponse) {
	http.SetCookie(w, &http.Cookie{
		Path:     "/",
		Name:     AccessTokenCookie,
		Value:    tokens.AccessToken,
		MaxAge:   int(tokens.ExpiresIn),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Path:     "/",
		Name:     RefreshTokenCookie,
		Value:    tokens.RefreshToken,
		MaxAge:   int(httpx.RefreshTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func expiredCookie(name string) *http.Cookie {
	return &http.Cookie{
		Path:     "/",
		Name:     name,
		Value:    "",
		MaxAge:   -1,
		SameSite: http.SameSiteLaxMode,
	}
}
