package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/tempohq/tempo"
	"github.com/tempohq/tempo/backoff"
	"github.com/tempohq/tempo/handlers"
	relayhook "github.com/tempohq/tempo/relay_hook"
	"github.com/tempohq/tempo/store"
	"github.com/tempohq/tempo/throttle"
)

func settingDefaultConfig() {
	// TEMPO_STORE_JOBS maps to store.jobs, and so on.
	viper.SetEnvPrefix("TEMPO")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	engine := tempo.DefaultConfig()
	viper.SetDefault("engine.poll_interval", engine.PollInterval)
	viper.SetDefault("engine.retry_backoff", engine.RetryBackoff)
	viper.SetDefault("engine.reconcile_interval", engine.ReconcileInterval)
	viper.SetDefault("engine.stale_job_threshold", engine.StaleJobThreshold)
	viper.SetDefault("engine.default_max_retries", engine.DefaultMaxRetries)
	viper.SetDefault("engine.shutdown_timeout", engine.ShutdownTimeout)
	viper.SetDefault("engine.retry_strategy", backoff.NameConstant)
	viper.SetDefault("engine.retry_max_delay", time.Hour)

	st := store.DefaultConfig()
	viper.SetDefault("store.jobs", st.Jobs)
	viper.SetDefault("store.index", st.Index)
	viper.SetDefault("store.postgres_dsn", st.PostgresDSN)
	viper.SetDefault("store.redis_addr", st.RedisAddr)
	viper.SetDefault("store.redis_password", st.RedisPassword)
	viper.SetDefault("store.redis_db", st.RedisDB)
	viper.SetDefault("store.index_key", st.IndexKey)

	h := handlers.DefaultConfig()
	setSimulationDefaults("handlers.email_notification", h.EmailNotification)
	setSimulationDefaults("handlers.resize_image", h.ResizeImage)
	setSimulationDefaults("handlers.generate_pdf", h.GeneratePDF)

	viper.SetDefault("audit.enabled", false)
	viper.SetDefault("events.enabled", false)
	viper.SetDefault("events.channel", relayhook.DefaultChannel)

	viper.SetDefault("server.addr", ":5000")
	viper.SetDefault("server.shutdown_timeout", "5s")

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")
}

func setSimulationDefaults(prefix string, sim handlers.Simulation) {
	viper.SetDefault(prefix+".delay", sim.Delay)
	viper.SetDefault(prefix+".failure_rate", sim.FailureRate)
}

func engineConfig() (tempo.Config, error) {
	return tempo.NewConfig(
		tempo.WithPollInterval(viper.GetDuration("engine.poll_interval")),
		tempo.WithRetryBackoff(viper.GetDuration("engine.retry_backoff")),
		tempo.WithReconcileInterval(viper.GetDuration("engine.reconcile_interval")),
		tempo.WithStaleJobThreshold(viper.GetDuration("engine.stale_job_threshold")),
		tempo.WithDefaultMaxRetries(viper.GetInt("engine.default_max_retries")),
		tempo.WithShutdownTimeout(viper.GetDuration("engine.shutdown_timeout")),
	)
}

// retryStrategy builds the backoff named by engine.retry_strategy. The
// default constant strategy waits engine.retry_backoff between attempts.
func retryStrategy(cfg tempo.Config) (backoff.Strategy, error) {
	return backoff.FromName(
		viper.GetString("engine.retry_strategy"),
		cfg.RetryBackoff,
		viper.GetDuration("engine.retry_max_delay"),
	)
}

func storeConfig() store.Config {
	return store.Config{
		Jobs:          viper.GetString("store.jobs"),
		Index:         viper.GetString("store.index"),
		PostgresDSN:   viper.GetString("store.postgres_dsn"),
		RedisAddr:     viper.GetString("store.redis_addr"),
		RedisPassword: viper.GetString("store.redis_password"),
		RedisDB:       viper.GetInt("store.redis_db"),
		IndexKey:      viper.GetString("store.index_key"),
	}
}

func handlersConfig() handlers.Config {
	sim := func(prefix string) handlers.Simulation {
		return handlers.Simulation{
			Delay:       viper.GetDuration(prefix + ".delay"),
			FailureRate: viper.GetFloat64(prefix + ".failure_rate"),
		}
	}
	return handlers.Config{
		EmailNotification: sim("handlers.email_notification"),
		ResizeImage:       sim("handlers.resize_image"),
		GeneratePDF:       sim("handlers.generate_pdf"),
	}
}

// throttleConfig reads the optional throttle list, e.g. in YAML:
//
//	throttle:
//	  - job_type: resize_image
//	    rate_limit: 2
//	    rate_burst: 5
func throttleConfig() ([]throttle.Config, error) {
	var cfgs []throttle.Config
	if err := viper.UnmarshalKey("throttle", &cfgs); err != nil {
		return nil, fmt.Errorf("throttle: %w", err)
	}
	return cfgs, nil
}

func serverShutdownTimeout() time.Duration {
	return viper.GetDuration("server.shutdown_timeout")
}

// newLogger builds the process logger from log.level and log.format.
func newLogger(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(viper.GetString("log.level"))); err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: level}

	switch format := viper.GetString("log.format"); format {
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("log.format: unknown format %q", format)
	}
}
