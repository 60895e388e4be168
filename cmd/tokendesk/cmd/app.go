package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/jmcleod/tokendesk/client"
	"github.com/jmcleod/tokendesk/guard"
	"github.com/jmcleod/tokendesk/internal/logging"
	"github.com/jmcleod/tokendesk/session"
	"github.com/jmcleod/tokendesk/storage"
	"github.com/jmcleod/tokendesk/tokens"
)

// app wires the stores for a single command invocation.
type app struct {
	logger  zerolog.Logger
	store   storage.Store
	client  *client.Client
	session *session.Store
	tokens  *tokens.Store
}

func newApp(ctx context.Context) (*app, error) {
	logger, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	cl, err := client.New(cfg.APIURL,
		client.WithTimeout(cfg.Timeout),
		client.WithLogger(logger.With().Str("component", "client").Logger()),
	)
	if err != nil {
		st.Close()
		return nil, err
	}

	sess := session.New(cl, st,
		session.WithNamespace(cfg.Profile),
		session.WithLogger(logger.With().Str("component", "session").Logger()),
	)
	cl.SetTokenSource(sess)

	return &app{
		logger:  logger,
		store:   st,
		client:  cl,
		session: sess,
		tokens:  tokens.New(cl, tokens.WithLogger(logger.With().Str("component", "tokens").Logger())),
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// restore loads the persisted session and waits for revalidation.
func (a *app) restore(ctx context.Context) {
	select {
	case <-a.session.Initialize(ctx):
	case <-ctx.Done():
	}
}

// requireSession restores the session and fails unless it is authenticated.
func (a *app) requireSession(ctx context.Context) error {
	a.restore(ctx)
	if err := guard.Require(guard.PathTokens, a.session.IsAuthenticated()); err != nil {
		if errors.Is(err, guard.ErrUnauthenticated) {
			return fmt.Errorf("%w for profile %q, run `tokendesk login` first", err, cfg.Profile)
		}
		return err
	}
	return nil
}

// withApp runs fn with a wired app and closes it afterwards.
func withApp(ctx context.Context, fn func(*app) error) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
