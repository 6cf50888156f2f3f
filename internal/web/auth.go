package web

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/RealZimboGuy/courseflow/internal/channels"
	"github.com/RealZimboGuy/courseflow/pkg/courseflow/core"
)

const sessionCookie = "cflow_session"

// sessionScope keys the session signatures apart from webhook signatures.
const sessionScope = "dashboard-session"

// SessionAuth issues dashboard sessions to operators who present the API key.
// A session is "<expiry unix>.<signature>" so any process sharing the key can
// verify it.
type SessionAuth struct {
	apiKey string
	signer *channels.Signer
	ttl    time.Duration
	now    func() time.Time
}

func NewSessionAuth(apiKey string, ttl time.Duration) *SessionAuth {
	return &SessionAuth{apiKey: apiKey, signer: channels.NewSigner(apiKey), ttl: ttl, now: time.Now}
}

func (s *SessionAuth) Enabled() bool { return s.apiKey != "" }

// CheckKey compares a presented key in constant time.
func (s *SessionAuth) CheckKey(key string) bool {
	return key != "" && subtle.ConstantTimeCompare([]byte(key), []byte(s.apiKey)) == 1
}

// Issue returns a session cookie value and its expiry.
func (s *SessionAuth) Issue() (string, time.Time, error) {
	expires := s.now().Add(s.ttl)
	sig, err := s.signer.Sign(sessionScope, expires.Unix(), nil)
	if err != nil {
		return "", time.Time{}, err
	}
	return strconv.FormatInt(expires.Unix(), 10) + "." + sig, expires, nil
}

func (s *SessionAuth) Valid(value string) bool {
	ts, sig, ok := strings.Cut(value, ".")
	if !ok {
		return false
	}
	expires, err := strconv.ParseInt(ts, 10, 64)
	if err != nil || s.now().Unix() >= expires {
		return false
	}
	return s.signer.Verify(sessionScope, expires, nil, sig)
}

// RequireSession redirects browsers without a valid session to the login page.
func (s *SessionAuth) RequireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.Enabled() {
			next(w, r)
			return
		}
		c, err := r.Cookie(sessionCookie)
		if err != nil || !s.Valid(c.Value) {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		ctx := context.WithValue(r.Context(), core.CtxKeyCaller, "dashboard")
		next(w, r.WithContext(ctx))
	}
}

func (wc *WebController) renderLogin(w http.ResponseWriter, status int, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	data["Title"] = "Login"
	w.WriteHeader(status)
	wc.render(w, "login", []string{"login.html"}, data)
}

func (wc *WebController) loginPageHandler(w http.ResponseWriter, r *http.Request) {
	if !wc.sessions.Enabled() {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	wc.renderLogin(w, http.StatusOK, nil)
}

func (wc *WebController) loginSubmitHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		wc.renderLogin(w, http.StatusBadRequest, map[string]any{"Error": "Invalid form"})
		return
	}
	if !wc.sessions.CheckKey(r.FormValue("apiKey")) {
		wc.renderLogin(w, http.StatusUnauthorized, map[string]any{"Error": "Invalid API key"})
		return
	}
	value, expires, err := wc.sessions.Issue()
	if err != nil {
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  expires,
	})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (wc *WebController) logoutHandler(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
