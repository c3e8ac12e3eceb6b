package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/MJE43/raid-frame-finder/internal/api"
	"github.com/MJE43/raid-frame-finder/internal/store"
)

const readHeaderTimeout = 10 * time.Second

// runServe opens the store, serves the API and shuts down when ctx ends
func (a *App) runServe(ctx context.Context, args []string) (err error) {
	cfg := a.cfg
	fs := a.flagSet("serve")
	cfg.bindServeFlags(fs)
	if err := parse(fs, args); err != nil {
		return err
	}

	logger := log.New(a.errOut, "[SERVE] ", log.LstdFlags)

	var db store.DB
	if cfg.DBPath != "" {
		sqlite, openErr := openStore(ctx, cfg.DBPath, log.New(a.errOut, "[STORE] ", log.LstdFlags))
		if openErr != nil {
			return openErr
		}
		defer func() { err = multierr.Append(err, sqlite.Close()) }()
		db = sqlite
	} else {
		logger.Printf("persistence_disabled")
	}

	opts := []api.Option{
		api.WithLogger(log.New(a.errOut, "[API] ", log.LstdFlags)),
		api.WithAuditOutput(a.errOut),
		api.WithAllowOrigin(cfg.AllowOrigin),
	}
	if cfg.Workers > 0 {
		opts = append(opts, api.WithWorkers(cfg.Workers))
	}
	server := api.NewServer(db, opts...)
	defer server.Close()

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Addr, err)
	}
	httpServer := &http.Server{
		Handler:           server.Routes(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	logger.Printf("listening addr=%s db=%q", ln.Addr(), cfg.DBPath)
	if a.listening != nil {
		a.listening(ln.Addr().String())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		logger.Printf("shutting_down timeout=%s", cfg.ShutdownTimeout)
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// openStore opens the database and applies pending migrations
func openStore(ctx context.Context, path string, logger *log.Logger) (*store.SQLiteDB, error) {
	db, err := store.NewSQLiteDB(path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	db.SetLogger(logger)
	if err := db.Migrate(ctx); err != nil {
		return nil, multierr.Append(fmt.Errorf("migrate store: %w", err), db.Close())
	}
	return db, nil
}
