package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
)

// DefaultJWKSCacheTTL bounds how long a key fetched for a kid is reused.
const DefaultJWKSCacheTTL = 15 * time.Minute

// clockSkew is the tolerated drift between our clock and the issuer's.
const clockSkew = time.Minute

// AccessTokenCookie carries the bearer token for browser page requests.
const AccessTokenCookie = "access_token"

// userIDKey stores the authenticated subject in the echo context.
const userIDKey = "userID"

// AuthConfig selects how tokens are verified.
type AuthConfig struct {
	JWKS     *keyfunc.JWKS
	Audience string
	Issuer   string
	// TestSecret switches verification to HS256 with a shared secret.
	TestSecret  []byte
	KeyCacheTTL time.Duration
}

// Auth validates incoming JWT tokens.
type Auth struct {
	JWKS       *keyfunc.JWKS
	Audience   string
	Issuer     string
	TestMode   bool
	TestSecret []byte

	parser      *jwt.Parser
	keyCache    sync.Map
	keyCacheTTL time.Duration
}

type cachedKey struct {
	key       any
	expiresAt time.Time
}

// NewAuth creates a new Auth instance. Either a JWKS or a test secret must
// be configured.
func NewAuth(cfg AuthConfig) (*Auth, error) {
	a := &Auth{
		JWKS:        cfg.JWKS,
		Audience:    cfg.Audience,
		Issuer:      cfg.Issuer,
		keyCacheTTL: cfg.KeyCacheTTL,
	}
	if a.keyCacheTTL < 0 {
		return nil, fmt.Errorf("invalid key cache ttl %v", cfg.KeyCacheTTL)
	}
	if len(cfg.TestSecret) > 0 {
		a.TestMode = true
		a.TestSecret = cfg.TestSecret
		a.parser = jwt.NewParser(jwt.WithValidMethods([]string{"HS256"}), jwt.WithoutClaimsValidation())
		return a, nil
	}
	if cfg.JWKS == nil {
		return nil, errors.New("jwks not configured")
	}
	a.parser = jwt.NewParser(jwt.WithValidMethods([]string{"RS256"}), jwt.WithoutClaimsValidation())
	return a, nil
}

// UserIDFromAuthHeader extracts the user identifier from the Authorization header.
func (a *Auth) UserIDFromAuthHeader(h string) (string, error) {
	if h == "" {
		return "", errMissingAuthorization
	}
	token, err := bearerTokenFromString(h)
	if err != nil {
		return "", err
	}
	return a.UserIDFromBearer(token)
}

// UserIDFromBearer extracts the user identifier from a bearer token presented as raw bytes.
func (a *Auth) UserIDFromBearer(token []byte) (string, error) {
	if len(token) == 0 {
		return "", errBadAuthorization
	}

	tokenStr := readOnlyString(token)
	var parsedToken *jwt.Token
	var err error
	if a.TestMode {
		parsedToken, err = a.parser.Parse(tokenStr, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("invalid signing method")
			}
			return a.TestSecret, nil
		})
	} else {
		parsedToken, err = a.parser.Parse(tokenStr, a.keyForToken)
	}
	if err != nil {
		return "", err
	}

	claims, ok := parsedToken.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid claims")
	}

	// Time claims are checked here rather than by the parser to allow
	// clockSkew of leeway.
	now := time.Now()
	if !claims.VerifyExpiresAt(now.Add(-clockSkew).Unix(), true) {
		return "", errors.New("token expired")
	}
	if !claims.VerifyNotBefore(now.Add(clockSkew).Unix(), false) {
		return "", errors.New("token not valid yet")
	}
	if !claims.VerifyIssuedAt(now.Add(clockSkew).Unix(), false) {
		return "", errors.New("token used before issued")
	}
	if a.Audience != "" && !claims.VerifyAudience(a.Audience, false) {
		return "", errors.New("invalid audience")
	}
	if a.Issuer != "" && !claims.VerifyIssuer(a.Issuer, false) {
		return "", errors.New("invalid issuer")
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", errors.New("missing sub")
	}

	return sub, nil
}

func (a *Auth) keyForToken(token *jwt.Token) (any, error) {
	if a.JWKS == nil {
		return nil, errors.New("jwks not configured")
	}

	kid, _ := token.Header["kid"].(string)
	if kid != "" && a.keyCacheTTL > 0 {
		if cached, ok := a.keyCache.Load(kid); ok {
			entry := cached.(cachedKey)
			if time.Now().Before(entry.expiresAt) {
				return entry.key, nil
			}
			a.keyCache.Delete(kid)
		}
	}

	key, err := a.JWKS.Keyfunc(token)
	if err != nil {
		return nil, err
	}

	if kid != "" && a.keyCacheTTL > 0 {
		a.keyCache.Store(kid, cachedKey{key: key, expiresAt: time.Now().Add(a.keyCacheTTL)})
	}
	return key, nil
}

// TokenSource names where RequireAuth may look for a token besides the
// Authorization header.
type TokenSource int

const (
	// FromCookie accepts the access_token cookie.
	FromCookie TokenSource = 1 << iota
	// FromQuery accepts a token query parameter, for EventSource clients.
	FromQuery
)

// RequireAuth rejects requests without a valid token. onFail decides the
// response; nil answers 401.
func RequireAuth(auth Authenticator, sources TokenSource, onFail func(echo.Context, error) error) echo.MiddlewareFunc {
	if onFail == nil {
		onFail = func(echo.Context, error) error {
			return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
		}
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID, err := auth.UserIDFromAuthHeader(requestAuthHeader(c, sources))
			if err != nil {
				return onFail(c, err)
			}
			c.Set(userIDKey, userID)
			return next(c)
		}
	}
}

// UserID returns the subject stored by RequireAuth.
func UserID(c echo.Context) string {
	id, _ := c.Get(userIDKey).(string)
	return id
}

func requestAuthHeader(c echo.Context, sources TokenSource) string {
	if h := c.Request().Header.Get(echo.HeaderAuthorization); h != "" {
		return h
	}
	if sources&FromCookie != 0 {
		if ck, err := c.Cookie(AccessTokenCookie); err == nil && ck.Value != "" {
			return "Bearer " + strings.TrimSpace(ck.Value)
		}
	}
	if sources&FromQuery != 0 {
		if tok := c.QueryParam("token"); tok != "" {
			return "Bearer " + tok
		}
	}
	return ""
}
