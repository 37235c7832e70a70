package auth

import (
	"crypto/sha256"
	"net/http"
	"time"

	"github.com/gorilla/sessions"
)

const sessionKeyToken = "token"

// SessionStore keeps the access token in a signed cookie for browser clients.
type SessionStore struct {
	store *sessions.CookieStore
	name  string
}

// NewSessionStore creates the cookie store. The secret is hashed to a 32-byte signing key.
func NewSessionStore(secret, cookieName string, secure bool, ttl time.Duration) *SessionStore {
	key := sha256.Sum256([]byte(secret))
	store := sessions.NewCookieStore(key[:])
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return &SessionStore{store: store, name: cookieName}
}

// Token returns the token stored in the request's session cookie.
func (s *SessionStore) Token(r *http.Request) (string, bool) {
	if _, err := r.Cookie(s.name); err != nil {
		return "", false
	}
	session, err := s.store.Get(r, s.name)
	if err != nil {
		return "", false
	}
	token, ok := session.Values[sessionKeyToken].(string)
	return token, ok && token != ""
}

// Save writes token into the session cookie.
func (s *SessionStore) Save(w http.ResponseWriter, r *http.Request, token string) error {
	session, _ := s.store.Get(r, s.name)
	session.Values[sessionKeyToken] = token
	return session.Save(r, w)
}

// Clear expires the session cookie.
func (s *SessionStore) Clear(w http.ResponseWriter, r *http.Request) error {
	session, _ := s.store.Get(r, s.name)
	delete(session.Values, sessionKeyToken)
	session.Options.MaxAge = -1
	return session.Save(r, w)
}
