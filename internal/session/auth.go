package session

import (
	"errors"
	"net/http"
	"strings"

	"github.com/weiawesome/wes-chat-realtime/pkg/jwt"
)

var ErrUnauthenticated = errors.New("unauthenticated")

// TokenValidator checks a credential issued elsewhere.
type TokenValidator interface {
	ValidateToken(token string) (*jwt.Claims, error)
}

// Authenticator resolves the user of a handshake request. It looks at the
// access-token cookie, then the Authorization bearer header, then the token
// query parameter.
type Authenticator struct {
	validator  TokenValidator
	cookieName string
}

func NewAuthenticator(v TokenValidator, cookieName string) *Authenticator {
	if cookieName == "" {
		cookieName = "accessToken"
	}
	return &Authenticator{validator: v, cookieName: cookieName}
}

// Identify returns the user id carried by r's credential.
func (a *Authenticator) Identify(r *http.Request) (string, error) {
	token := a.token(r)
	if token == "" {
		return "", ErrUnauthenticated
	}
	claims, err := a.validator.ValidateToken(token)
	if err != nil {
		return "", errors.Join(ErrUnauthenticated, err)
	}
	userID := claims.Identity()
	if userID == "" {
		return "", ErrUnauthenticated
	}
	return userID, nil
}

func (a *Authenticator) token(r *http.Request) string {
	if c, err := r.Cookie(a.cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	if h := r.Header.Get("Authorization"); h != "" {
		if parts := strings.SplitN(h, " ", 2); len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return r.URL.Query().Get("token")
}
