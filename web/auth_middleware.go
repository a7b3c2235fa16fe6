package web

import (
	"crypto/subtle"
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

// Authenticator guards the status API with HTTP basic auth. The password is
// stored as a bcrypt hash; the agent never sees the plaintext after startup.
type Authenticator struct {
	username     string
	passwordHash string
	enabled      bool
}

func NewAuthenticator(username, passwordHash string, enabled bool) Authenticator {
	return Authenticator{
		username:     username,
		passwordHash: passwordHash,
		enabled:      enabled,
	}
}

func (a Authenticator) Middleware(next http.HandlerFunc) http.HandlerFunc {
	if !a.enabled {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || !a.valid(user, pass) {
			w.Header().Set("WWW-Authenticate", `Basic realm="linesync"`)
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next(w, r)
	}
}

func (a Authenticator) valid(user, pass string) bool {
	if subtle.ConstantTimeCompare([]byte(user), []byte(a.username)) != 1 {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(a.passwordHash), []byte(pass)) == nil
}
