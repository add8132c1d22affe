package api

import (
	"compress/gzip"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

var errBodyTooLarge = errors.New("request body too large")

// GzipRequestMiddleware decompresses gzip-encoded request bodies so handlers
// work with plain JSON payloads. Invalid gzip payloads are rejected with 400.
// maxDecoded caps the inflated size; zero disables the cap.
func GzipRequestMiddleware(maxDecoded int64) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !hasGzipEncoding(req.Header.Get(echo.HeaderContentEncoding)) {
				return next(c)
			}

			body := req.Body
			gr, err := gzip.NewReader(body)
			if err != nil {
				_ = body.Close()
				return echo.NewHTTPError(http.StatusBadRequest, "invalid gzip body")
			}

			req.Body = &gzipReadCloser{Reader: gr, body: body, remaining: maxDecoded, limited: maxDecoded > 0}
			req.ContentLength = -1
			req.Header.Del(echo.HeaderContentEncoding)
			req.Header.Del(echo.HeaderContentLength)

			return next(c)
		}
	}
}

// hasGzipEncoding reports whether any coding in a Content-Encoding list is
// gzip. x-gzip is the legacy alias from RFC 9110.
func hasGzipEncoding(header string) bool {
	for enc := range strings.SplitSeq(header, ",") {
		switch strings.ToLower(strings.TrimSpace(enc)) {
		case "gzip", "x-gzip":
			return true
		}
	}
	return false
}

type gzipReadCloser struct {
	*gzip.Reader
	body      io.Closer
	remaining int64
	limited   bool
}

func (g *gzipReadCloser) Read(p []byte) (int, error) {
	if !g.limited {
		return g.Reader.Read(p)
	}
	if g.remaining <= 0 {
		// one extra byte tells a body at the cap apart from one above it
		var probe [1]byte
		if n, _ := g.Reader.Read(probe[:]); n > 0 {
			return 0, errBodyTooLarge
		}
		return 0, io.EOF
	}
	if int64(len(p)) > g.remaining {
		p = p[:g.remaining]
	}
	n, err := g.Reader.Read(p)
	g.remaining -= int64(n)
	return n, err
}

func (g *gzipReadCloser) Close() error {
	return errors.Join(g.Reader.Close(), g.body.Close())
}
