package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/hochfrequenz/asset-scheduler/internal/catalog"
	"github.com/hochfrequenz/asset-scheduler/internal/config"
	"github.com/hochfrequenz/asset-scheduler/internal/executor"
	"github.com/hochfrequenz/asset-scheduler/internal/logging"
	"github.com/hochfrequenz/asset-scheduler/internal/notify"
	"github.com/hochfrequenz/asset-scheduler/internal/observer"
	"github.com/hochfrequenz/asset-scheduler/internal/pipeline"
	"github.com/hochfrequenz/asset-scheduler/internal/retry"
	"github.com/hochfrequenz/asset-scheduler/internal/runstore"
	"github.com/hochfrequenz/asset-scheduler/internal/sheet"
)

// app holds what every command shares
type app struct {
	cfg   *config.Config
	log   *logrus.Entry
	store *runstore.Store
	obs   *observer.Observer

	redis *redis.Client
}

func loadConfig() (*config.Config, error) {
	if _, err := config.LoadDotEnv(".env", ".env.local"); err != nil {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg, err := config.LoadWithLocalFallback(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.General.LogLevel = logLevel
	}
	return cfg, nil
}

// newApp loads configuration and opens the run history
func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(logging.Options{Level: cfg.General.LogLevel, Format: cfg.General.LogFormat})
	if err != nil {
		return nil, err
	}
	log := logrus.NewEntry(logger)
	if cfg.General.AccountName != "" {
		log = log.WithField("account", cfg.General.AccountName)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.General.DatabasePath), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	store, err := runstore.New(cfg.General.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &app{
		cfg:   cfg,
		log:   log,
		store: store,
		obs:   observer.New(stuckThreshold(cfg)),
	}, nil
}

// stuckThreshold is the longest job timeout, an hour when none is set
func stuckThreshold(cfg *config.Config) time.Duration {
	d := time.Duration(0)
	for _, j := range cfg.BatchJobs() {
		d = max(d, j.Timeout)
	}
	if d == 0 {
		return time.Hour
	}
	return d
}

func (a *app) Close() error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	errs = append(errs, a.store.Close())
	return errors.Join(errs...)
}

// runner wires a pipeline from the configuration
func (a *app) runner(ctx context.Context) (*pipeline.Runner, error) {
	if err := a.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config:\n%w", err)
	}
	loc, _ := a.cfg.Location()

	src, err := a.source(ctx)
	if err != nil {
		return nil, err
	}
	platform, err := a.platform(ctx)
	if err != nil {
		return nil, err
	}

	r := pipeline.New(src, platform, a.log)
	r.Store = a.store
	r.Observer = a.obs
	r.Notifier = a.notifier()
	r.Location = loc
	r.HorizonDays = a.cfg.Schedule.HorizonDays
	r.ChunkSize = a.cfg.Platform.ChunkSize
	r.Rules = a.cfg.Rules()

	exec := a.cfg.Execution
	r.Executor = executor.Config{
		DryRun: exec.DryRun,
		Pacing: exec.Pacing.D(),
		Jitter: exec.Jitter.D(),
		Retry:  executor.MutationPolicy(),
	}
	r.Executor.Retry.MaxAttempts = exec.MaxAttempts
	r.Executor.Retry.Backoff = retry.Exponential(exec.RetryBase.D())
	r.Verify = retry.Policy{
		MaxAttempts:  exec.VerifyAttempts,
		InitialDelay: exec.VerifyInitialDelay.D(),
		Backoff:      retry.Constant(exec.VerifyInterval.D()),
	}
	r.Report = notify.ReportOptions{
		Account:  a.cfg.General.AccountName,
		URL:      a.cfg.Source.URL,
		RowLimit: a.cfg.Notifications.RowLimit,
	}

	if a.cfg.State.Backend == config.StateRedis {
		a.redis = redis.NewClient(&redis.Options{Addr: a.cfg.State.RedisAddr})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis %s: %w", a.cfg.State.RedisAddr, err)
		}
		r.Fingerprints = runstore.NewRedisFingerprints(a.redis, a.cfg.State.RedisPrefix)
	}
	return r, nil
}

func (a *app) source(ctx context.Context) (sheet.Source, error) {
	switch a.cfg.Source.Kind {
	case config.SourceGSheets:
		return sheet.OpenSpreadsheet(ctx, a.cfg.Source.SpreadsheetID, a.cfg.Source.CredentialsFile)
	default:
		return sheet.NewWorkbook(a.cfg.Source.Path), nil
	}
}

// platform returns the gateway client, authenticated with Google credentials
// when a credentials file is configured
func (a *app) platform(ctx context.Context) (catalog.Platform, error) {
	pc := a.cfg.Platform
	hc := &http.Client{Timeout: pc.Timeout.D()}
	if pc.CredentialsFile != "" {
		data, err := os.ReadFile(pc.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read platform credentials: %w", err)
		}
		creds, err := google.CredentialsFromJSON(ctx, data, pc.Scopes...)
		if err != nil {
			return nil, fmt.Errorf("parse platform credentials: %w", err)
		}
		hc = oauth2.NewClient(ctx, creds.TokenSource)
		hc.Timeout = pc.Timeout.D()
	}
	return catalog.NewHTTPClient(pc.BaseURL, pc.CustomerID, hc), nil
}

func (a *app) notifier() notify.Notifier {
	var ns []notify.Notifier
	if a.cfg.Notifications.SlackWebhook != "" {
		ns = append(ns, notify.NewSlackWebhook(a.cfg.Notifications.SlackWebhook))
	}
	if a.cfg.Notifications.Desktop {
		ns = append(ns, notify.NewDesktop())
	}
	if len(ns) == 0 {
		return notify.Discard
	}
	return notify.NewFanout(ns...)
}
