package api

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	log "github.com/sirupsen/logrus"

	"todo-api/domain"
)

// Readiness gates /readyz. It starts ready once routes are registered and
// is switched off when the server begins shutting down.
type Readiness struct {
	ready atomic.Bool
}

func (r *Readiness) SetReady(ready bool) {
	r.ready.Store(ready)
}

func (r *Readiness) Ready() bool {
	return r.ready.Load()
}

type options struct {
	corsOrigins []string
}

// Option adjusts Register.
type Option func(*options)

// WithCORS enables CORS for the given origins.
func WithCORS(origins ...string) Option {
	return func(o *options) { o.corsOrigins = origins }
}

// Register wires up the error handler, request middleware and all routes on
// the provided Echo instance. replay may be nil, in which case
// Idempotency-Key headers are ignored. Request ids are assigned before any
// other middleware runs, so every response carries one.
func Register(e *echo.Echo, store Storage, replay ReplayStore, logger *log.Logger, opts ...Option) *Readiness {
	if logger == nil {
		panic("api.Register: logger is nil")
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	e.HTTPErrorHandler = ErrorHandler(logger)
	e.JSONSerializer = sonicSerializer{}

	e.Use(RequestIDMiddleware())
	e.Use(ObservabilityMiddleware(logger))
	e.Use(RecoverMiddleware(logger))
	e.Use(middleware.Secure())
	if len(o.corsOrigins) > 0 {
		e.Use(CORSMiddleware(o.corsOrigins))
	}
	e.Use(BodyLimitMiddleware())
	e.Use(GzipRequestMiddleware())

	rp := &replayer{store: replay, logger: logger}
	readiness := &Readiness{}

	v1 := e.Group("/v1")
	v1.GET("/todos", listTodos(store))
	v1.GET("/todos/stats", todoStats(store))
	v1.GET("/todos/:id", getTodo(store))
	v1.POST("/todos", createTodo(store, rp))
	v1.POST("/todos/bulk", bulkCreateTodos(store, rp))
	v1.PUT("/todos/:id", replaceTodo(store))
	v1.PATCH("/todos/:id", patchTodo(store))
	v1.DELETE("/todos/:id", deleteTodo(store))
	v1.GET("/openapi.json", openAPI())

	e.GET("/healthz", healthz())
	e.GET("/readyz", readyz(readiness))

	readiness.SetReady(true)
	logger.WithField("idempotency", replay != nil).Info("routes registered")
	return readiness
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}
}

func readyz(r *Readiness) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !r.Ready() {
			return c.String(http.StatusServiceUnavailable, "not ready")
		}
		return c.String(http.StatusOK, "ready")
	}
}

func openAPI() echo.HandlerFunc {
	return func(c echo.Context) error {
		doc, err := openAPIDocument()
		if err != nil {
			return err
		}
		return c.JSONBlob(http.StatusOK, doc)
	}
}

// notFoundOr maps the store's not-found sentinel onto a 404 for id.
func notFoundOr(err error, id int64) error {
	if errors.Is(err, domain.ErrNotFound) {
		return NewTodoNotFound(id)
	}
	return err
}

func listTodos(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		q, err := parseListQuery(c)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, store.List(q))
	}
}

func todoStats(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, store.Stats())
	}
}

func getTodo(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := parseID(c)
		if err != nil {
			return err
		}
		todo, err := store.Get(id)
		if err != nil {
			return notFoundOr(err, id)
		}
		return c.JSON(http.StatusOK, todo)
	}
}

func createTodo(store Storage, rp *replayer) echo.HandlerFunc {
	return func(c echo.Context) error {
		if handled, err := rp.serve(c); handled {
			return err
		}
		body, err := decodeObject(c)
		if err != nil {
			return err
		}
		text, err := parseCreate(body)
		if err != nil {
			return err
		}
		return rp.respond(c, http.StatusCreated, store.Create(text))
	}
}

func bulkCreateTodos(store Storage, rp *replayer) echo.HandlerFunc {
	return func(c echo.Context) error {
		if handled, err := rp.serve(c); handled {
			return err
		}
		body, err := decodeObject(c)
		if err != nil {
			return err
		}
		texts, err := parseBulk(body)
		if err != nil {
			return err
		}
		return rp.respond(c, http.StatusCreated, bulkResponse{Items: store.BulkCreate(texts)})
	}
}

func replaceTodo(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := parseID(c)
		if err != nil {
			return err
		}
		body, err := decodeObject(c)
		if err != nil {
			return err
		}
		text, done, err := parseReplace(body)
		if err != nil {
			return err
		}
		todo, err := store.Replace(id, text, done)
		if err != nil {
			return notFoundOr(err, id)
		}
		return c.JSON(http.StatusOK, todo)
	}
}

func patchTodo(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := parseID(c)
		if err != nil {
			return err
		}
		body, err := decodeObject(c)
		if err != nil {
			return err
		}
		text, done, err := parsePatch(body)
		if err != nil {
			return err
		}
		todo, err := store.Patch(id, text, done)
		if err != nil {
			return notFoundOr(err, id)
		}
		return c.JSON(http.StatusOK, todo)
	}
}

func deleteTodo(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := parseID(c)
		if err != nil {
			return err
		}
		if err := store.Delete(id); err != nil {
			return notFoundOr(err, id)
		}
		return c.NoContent(http.StatusNoContent)
	}
}
