package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RoleAdmin grants access to translation imports.
const RoleAdmin = "admin"

const authorizationScheme = "Bearer"

var (
	ErrMissingSessionSigningKey = errors.New("auth: session signing secret is empty")
	ErrMissingSessionIssuer     = errors.New("auth: session issuer is empty")
	ErrMissingSessionCookieName = errors.New("auth: session cookie name is empty")
	ErrMissingSessionToken      = errors.New("auth: no session token presented")
	ErrInvalidSessionToken      = errors.New("auth: session token rejected")
	ErrExpiredSessionToken      = errors.New("auth: session token expired")
	ErrMissingSessionSubject    = errors.New("auth: session token names no user")
)

// SessionClaims is the session payload shared with the token issuer. The JSON
// names follow the identity provider's cookie format.
type SessionClaims struct {
	UserID          string   `json:"user_id"`
	UserEmail       string   `json:"user_email"`
	UserDisplayName string   `json:"user_display_name"`
	UserRoles       []string `json:"user_roles"`
	jwt.RegisteredClaims
}

// HasRole reports whether role was granted. Surrounding spaces and case are ignored.
func (c SessionClaims) HasRole(role string) bool {
	want := strings.TrimSpace(role)
	for _, granted := range c.UserRoles {
		if strings.EqualFold(strings.TrimSpace(granted), want) {
			return true
		}
	}
	return false
}

type SessionValidatorConfig struct {
	SigningSecret []byte
	Issuer        string
	CookieName    string
	Clock         func() time.Time
}

// SessionValidator accepts HS256 session tokens minted for one issuer.
type SessionValidator struct {
	secret     []byte
	cookieName string
	parser     *jwt.Parser
}

func NewSessionValidator(cfg SessionValidatorConfig) (*SessionValidator, error) {
	issuer, cookieName := strings.TrimSpace(cfg.Issuer), strings.TrimSpace(cfg.CookieName)
	switch {
	case len(cfg.SigningSecret) == 0:
		return nil, ErrMissingSessionSigningKey
	case issuer == "":
		return nil, ErrMissingSessionIssuer
	case cookieName == "":
		return nil, ErrMissingSessionCookieName
	}
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
	}
	if cfg.Clock != nil {
		options = append(options, jwt.WithTimeFunc(cfg.Clock))
	}
	return &SessionValidator{
		secret:     append([]byte(nil), cfg.SigningSecret...),
		cookieName: cookieName,
		parser:     jwt.NewParser(options...),
	}, nil
}

func (v *SessionValidator) CookieName() string {
	return v.cookieName
}

// ValidateToken checks signature, issuer and lifetime, then requires a user.
func (v *SessionValidator) ValidateToken(raw string) (SessionClaims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return SessionClaims{}, ErrMissingSessionToken
	}

	var claims SessionClaims
	if _, err := v.parser.ParseWithClaims(raw, &claims, v.key); err != nil {
		return SessionClaims{}, rejection(err)
	}
	if strings.TrimSpace(claims.Subject) == "" || strings.TrimSpace(claims.UserID) == "" {
		return SessionClaims{}, ErrMissingSessionSubject
	}
	return claims, nil
}

// ValidateRequest validates the token a request carries. An Authorization
// header with the Bearer scheme wins over the session cookie.
func (v *SessionValidator) ValidateRequest(r *http.Request) (SessionClaims, error) {
	raw, found := v.presentedToken(r)
	if !found {
		return SessionClaims{}, ErrMissingSessionToken
	}
	return v.ValidateToken(raw)
}

func (v *SessionValidator) presentedToken(r *http.Request) (string, bool) {
	if r == nil {
		return "", false
	}
	scheme, credentials, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if ok && strings.EqualFold(scheme, authorizationScheme) && strings.TrimSpace(credentials) != "" {
		return credentials, true
	}
	if cookie, err := r.Cookie(v.cookieName); err == nil && cookie.Value != "" {
		return cookie.Value, true
	}
	return "", false
}

func (v *SessionValidator) key(*jwt.Token) (interface{}, error) {
	return v.secret, nil
}

// rejection maps parser failures onto this package's errors.
func rejection(err error) error {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return ErrExpiredSessionToken
	}
	return fmt.Errorf("%w: %v", ErrInvalidSessionToken, err)
}
