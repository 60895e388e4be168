// Package console serves the session and tokens stores as a local JSON API.
package console

import (
	"context"
	_ "embed"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	openapi "github.com/go-openapi/runtime/middleware"
	"github.com/rs/zerolog"

	"github.com/jmcleod/tokendesk/client"
	"github.com/jmcleod/tokendesk/guard"
	"github.com/jmcleod/tokendesk/session"
	"github.com/jmcleod/tokendesk/tokens"
)

//go:embed openapi.yaml
var openapiSpec []byte

// Editors is the IDE part of the API client.
type Editors interface {
	SupportedEditors(ctx context.Context) (*client.SupportedEditors, error)
	OpenEditor(ctx context.Context, in client.OpenEditorRequest) (*client.OpenEditorResponse, error)
}

// Console holds the stores the handlers drive.
type Console struct {
	session *session.Store
	tokens  *tokens.Store
	editors Editors
	logger  zerolog.Logger
}

// Option configures the Console.
type Option func(*Console)

// WithLogger sets the request logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Console) {
		c.logger = logger
	}
}

// New creates a Console over the given stores.
func New(sess *session.Store, toks *tokens.Store, editors Editors, opts ...Option) *Console {
	c := &Console{
		session: sess,
		tokens:  toks,
		editors: editors,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Console) authenticated() bool {
	return c.session != nil && c.session.IsAuthenticated()
}

// Router returns the console routes.
func (c *Console) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(c.logger))
	r.Use(middleware.Recoverer)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})
	r.Handle("/docs*", openapi.SwaggerUI(openapi.SwaggerUIOpts{
		SpecURL: "/openapi.yaml",
		Path:    "docs",
	}, nil))

	r.Group(func(r chi.Router) {
		r.Use(SecurityHeaders)

		r.Get("/session", c.Session)
		r.Post("/logout", c.Logout)
		r.Get("/ide/editors", c.ListEditors)

		r.Group(func(r chi.Router) {
			r.Use(guard.Middleware("", c.authenticated))

			r.Get("/", c.Session)
			r.Get("/login", c.Session)
			r.Post("/login", c.Login)

			r.Route("/tokens", func(r chi.Router) {
				r.Get("/", c.ListTokens)
				r.Post("/", c.CreateToken)
				r.Get("/statistics", c.Statistics)
				r.Post("/batch-delete", c.BatchDelete)
				r.Post("/batch-validate", c.BatchValidate)
				r.Post("/batch-refresh", c.BatchRefresh)
				r.Post("/export", c.Export)
				r.Post("/import", c.Import)
				r.Get("/{tokenID}", c.GetToken)
				r.Put("/{tokenID}", c.UpdateToken)
				r.Delete("/{tokenID}", c.DeleteToken)
				r.Post("/{tokenID}/validate", c.ValidateToken)
				r.Post("/{tokenID}/refresh", c.RefreshToken)
				r.Post("/{tokenID}/open", c.OpenEditor)
			})
		})
	})

	return r
}
