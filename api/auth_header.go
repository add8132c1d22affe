package api

import (
	"errors"
	"net/http"
	"strings"
	"unsafe"

	"github.com/labstack/echo/v4"
)

var (
	errMissingAuthorization = errors.New("missing authorization header")
	errBadAuthorization     = errors.New("bad auth header")
)

const bearerPrefix = "Bearer "

func bearerTokenFromHeader(header http.Header) ([]byte, error) {
	return bearerTokenFromString(header.Get(echo.HeaderAuthorization))
}

// bearerTokenFromString returns the compact JWT carried by a
// "Bearer <token>" value without copying it.
func bearerTokenFromString(raw string) ([]byte, error) {
	trimmed := strings.Trim(raw, " ")
	if trimmed == "" {
		return nil, errMissingAuthorization
	}
	token, ok := strings.CutPrefix(trimmed, bearerPrefix)
	if !ok || token == "" {
		return nil, errBadAuthorization
	}
	// header.payload.signature
	if strings.Count(token, ".") != 2 {
		return nil, errBadAuthorization
	}
	return unsafe.Slice(unsafe.StringData(token), len(token)), nil
}

func readOnlyString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(&b[0], len(b))
}
