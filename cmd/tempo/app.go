package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	"github.com/tempohq/tempo/api"
	audithook "github.com/tempohq/tempo/audit_hook"
	"github.com/tempohq/tempo/engine"
	"github.com/tempohq/tempo/handlers"
	relayhook "github.com/tempohq/tempo/relay_hook"
	"github.com/tempohq/tempo/store"
)

// app is the wiring shared by every command.
type app struct {
	logger   *slog.Logger
	backends *store.Backends
	events   *goredis.Client
	eng      *engine.Engine
}

func newApp(ctx context.Context) (*app, error) {
	logger, err := newLogger(os.Stderr)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	engCfg, err := engineConfig()
	if err != nil {
		return nil, err
	}
	strategy, err := retryStrategy(engCfg)
	if err != nil {
		return nil, err
	}
	throttles, err := throttleConfig()
	if err != nil {
		return nil, err
	}

	stCfg := storeConfig()
	backends, err := store.Open(ctx, stCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open backends: %w", err)
	}
	a := &app{logger: logger, backends: backends}

	opts := []engine.Option{
		engine.WithConfig(engCfg),
		engine.WithBackoff(strategy),
		engine.WithLogger(logger),
	}
	if len(throttles) > 0 {
		opts = append(opts, engine.WithThrottle(throttles...))
	}
	if viper.GetBool("audit.enabled") {
		opts = append(opts, engine.WithExtension(
			audithook.New(audithook.LogRecorder(logger), audithook.WithLogger(logger)),
		))
	}
	if viper.GetBool("events.enabled") {
		a.events = goredis.NewClient(&goredis.Options{
			Addr:     stCfg.RedisAddr,
			Password: stCfg.RedisPassword,
			DB:       stCfg.RedisDB,
		})
		opts = append(opts, engine.WithExtension(relayhook.New(a.events,
			relayhook.WithChannel(viper.GetString("events.channel")),
			relayhook.WithLogger(logger),
		)))
	}

	eng, err := engine.Build(backends.Jobs, backends.Index, opts...)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("build engine: %w", err)
	}
	handlers.Register(eng.Registry(),
		handlers.WithConfig(handlersConfig()),
		handlers.WithLogger(logger),
	)

	a.eng = eng
	return a, nil
}

func (a *app) Close() {
	if err := a.backends.Close(); err != nil {
		a.logger.Error("close backends", slog.String("error", err.Error()))
	}
	if a.events != nil {
		if err := a.events.Close(); err != nil {
			a.logger.Error("close event publisher", slog.String("error", err.Error()))
		}
	}
}

// serveHTTP runs the API until ctx is cancelled, then shuts the server
// down gracefully.
func (a *app) serveHTTP(ctx context.Context) error {
	srv := &http.Server{
		Addr:    viper.GetString("server.addr"),
		Handler: api.New(a.eng, api.WithLogger(a.logger)).Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	a.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), serverShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}

// work runs the worker loop until ctx is cancelled.
func (a *app) work(ctx context.Context) error {
	if err := a.eng.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	<-ctx.Done()

	a.logger.Info("stopping worker")
	return a.eng.Stop(context.WithoutCancel(ctx))
}
