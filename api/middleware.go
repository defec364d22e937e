package api

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	log "github.com/sirupsen/logrus"
)

// RequestIDMiddleware reuses an inbound X-Request-ID or generates a UUID,
// echoes it in the response header and stores it on the context.
func RequestIDMiddleware() echo.MiddlewareFunc {
	return middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
		RequestIDHandler: func(c echo.Context, id string) {
			c.Set(contextKeyRequestID, id)
		},
	})
}

func requestID(c echo.Context) string {
	if id, ok := c.Get(contextKeyRequestID).(string); ok && id != "" {
		return id
	}
	return c.Response().Header().Get(echo.HeaderXRequestID)
}

// RecoverMiddleware turns panics into errors and logs them with the stack.
// The error is handed back up the chain so the observability middleware
// sees the final status.
func RecoverMiddleware(logger *log.Logger) echo.MiddlewareFunc {
	return middleware.RecoverWithConfig(middleware.RecoverConfig{
		DisableErrorHandler: true,
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			logger.WithFields(log.Fields{
				"request_id": requestID(c),
				"method":     c.Request().Method,
				"path":       c.Request().URL.Path,
				"error":      err.Error(),
				"stack":      string(stack),
			}).Error("request.panic")
			return fmt.Errorf("recovered panic: %w", err)
		},
	})
}

// CORSMiddleware answers preflights for routes that exist. Preflights to
// unknown paths fall through to the router so they get the usual 404.
func CORSMiddleware(origins []string) echo.MiddlewareFunc {
	return middleware.CORSWithConfig(middleware.CORSConfig{
		Skipper: func(c echo.Context) bool {
			if c.Request().Method != http.MethodOptions {
				return false
			}
			allow, _ := c.Get(echo.ContextKeyHeaderAllow).(string)
			return allow == ""
		},
		AllowOrigins:  origins,
		AllowHeaders:  []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderXRequestID, HeaderIdempotencyKey},
		ExposeHeaders: []string{echo.HeaderXRequestID, HeaderIdempotentReplayed},
	})
}

// BodyLimitMiddleware rejects bodies whose wire size exceeds maxBodySize.
func BodyLimitMiddleware() echo.MiddlewareFunc {
	return middleware.BodyLimit(strconv.Itoa(maxBodySize/1024) + "K")
}

// GzipRequestMiddleware inflates gzip-encoded bodies. The inflated stream is
// capped at maxBodySize as well, so a small compressed payload cannot expand
// past the limit plain bodies are held to.
func GzipRequestMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !hasGzipEncoding(req.Header.Get(echo.HeaderContentEncoding)) {
				return next(c)
			}

			zr, err := gzip.NewReader(req.Body)
			if err != nil {
				_ = req.Body.Close()
				return NewValidationError(FieldError{Path: "body", Message: "Invalid gzip body"})
			}

			req.Body = &inflatedBody{zr: zr, raw: req.Body, remaining: maxBodySize}
			req.ContentLength = -1
			req.Header.Del(echo.HeaderContentEncoding)
			req.Header.Del(echo.HeaderContentLength)

			return next(c)
		}
	}
}

func hasGzipEncoding(header string) bool {
	for _, enc := range strings.Split(header, ",") {
		if strings.EqualFold(strings.TrimSpace(enc), "gzip") {
			return true
		}
	}
	return false
}

// inflatedBody reads a gzip stream and fails with 413 once more than
// remaining bytes have been produced.
type inflatedBody struct {
	zr        *gzip.Reader
	raw       io.ReadCloser
	remaining int64
}

func (b *inflatedBody) Read(p []byte) (int, error) {
	if b.remaining <= 0 {
		// one byte past the cap means the payload really is too large
		var extra [1]byte
		if n, _ := b.zr.Read(extra[:]); n > 0 {
			return 0, echo.ErrStatusRequestEntityTooLarge
		}
		return 0, io.EOF
	}
	if int64(len(p)) > b.remaining {
		p = p[:b.remaining]
	}
	n, err := b.zr.Read(p)
	b.remaining -= int64(n)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, NewValidationError(FieldError{Path: "body", Message: "Invalid gzip body"})
	}
	return n, err
}

func (b *inflatedBody) Close() error {
	return errors.Join(b.zr.Close(), b.raw.Close())
}
