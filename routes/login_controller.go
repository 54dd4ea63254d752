package routes

import (
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-chi/render"
	"github.com/goccy/go-json"

	"github.com/mbolis/leadbox/app"
	"github.com/mbolis/leadbox/httpx"
	"github.com/mbolis/leadbox/log"
	"github.com/mbolis/leadbox/routes/middlewares"
)

var reRefresh = regexp.MustCompile(`(?i)^refresh\s+(.*)`)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login takes the admin credentials, through basic auth or a JSON body, and
// answers with an access/refresh token pair. The tokens are also set as
// cookies for the dashboard pages.
func Login(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok {
			req := loginRequest{}
			if err := render.DecodeJSON(r.Body, &req); err != nil || req.Username == "" {
				httpx.LogStatus(w, r, http.StatusUnauthorized, log.DebugLevel, "login.credentials")
				return
			}
			user, pass = req.Username, req.Password
		}

		tokenRequest(app, w, r, url.Values{
			"grant_type": {"password"},
			"username":   {user},
			"password":   {pass},
		})
	}
}

func Refresh(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		match := reRefresh.FindStringSubmatch(r.Header.Get("authorization"))
		if len(match) == 0 {
			httpx.LogStatus(w, r, http.StatusUnauthorized, log.DebugLevel, "refresh.token")
			return
		}

		tokenRequest(app, w, r, url.Values{
			"grant_type":    {"refresh_token"},
			"refresh_token": {match[1]},
		})
	}
}

func tokenRequest(app app.App, w http.ResponseWriter, r *http.Request, form url.Values) {
	body := form.Encode()
	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, "/", strings.NewReader(body))
	if err != nil {
		httpx.LogInternalError(w, r, "token.new_request", err)
		return
	}
	req.RemoteAddr = r.RemoteAddr
	req.Header.Set("content-type", "application/x-www-form-urlencoded")
	req.Header.Set("content-length", strconv.Itoa(len(body)))

	resp := httpx.NewResponseBuffer()
	app.UserCredentials(resp, req)

	if resp.Status() == http.StatusOK {
		var tokens middlewares.TokenResponse
		if err := json.Unmarshal(resp.Body(), &tokens); err == nil {
			middlewares.SetTokenCookies(w, tokens)
		}
	}
	resp.Flush(w)
}

// Logout revokes every refresh token of the admin and clears the cookies.
func Logout(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		username := middlewares.AdminUsername(r)
		n := app.Tokens.Revoke(username)
		log.Infof("logout: %s (%d tokens revoked)", username, n)

		for _, name := range []string{middlewares.AccessTokenCookie, middlewares.RefreshTokenCookie} {
			http.SetCookie(w, &http.Cookie{Path: "/", Name: name, MaxAge: -1})
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
