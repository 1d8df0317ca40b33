package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kemicky/forage/pkg/config"
	"github.com/kemicky/forage/pkg/stores"
	"github.com/kemicky/forage/pkg/telemetry"
	"github.com/kemicky/forage/pkg/viewmodel"
)

const shutdownTimeout = 5 * time.Second

// app holds everything a command needs to talk to the record store.
type app struct {
	cfg   *config.Config
	tel   *telemetry.Telemetry
	store *stores.SQLiteStore
	vm    *viewmodel.ForageableViewModel
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}
	return cfg, nil
}

// openApp loads configuration, opens and migrates the store and builds the
// view model on top of it.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	tel, err := telemetry.NewTelemetry(cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("failed to set up telemetry: %w", err)
	}
	if err := tel.StartMetricsServer(); err != nil {
		return nil, fmt.Errorf("failed to start metrics server: %w", err)
	}

	a := &app{cfg: cfg, tel: tel}

	a.store, err = stores.NewSQLiteStore(cfg.Database, stores.WithTelemetry(tel))
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	if err := a.store.Init(ctx); err != nil {
		a.close()
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	if err := a.store.Migrate(ctx); err != nil {
		a.close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	a.vm, err = viewmodel.NewForageableViewModel(a.store,
		viewmodel.WithTelemetry(tel),
		viewmodel.WithLogger(tel.Logger.WithField("db", cfg.Database.Path)),
		viewmodel.WithTaskConfig(cfg.Tasks),
	)
	if err != nil {
		a.close()
		return nil, err
	}

	log.Debug().Str("db", cfg.Database.Path).Msg("Record store ready")
	return a, nil
}

// settle waits for queued mutations and returns the first failure, if any.
func (a *app) settle(ctx context.Context) error {
	if err := a.vm.Wait(ctx); err != nil {
		return err
	}

	var errs []error
	for {
		select {
		case f := <-a.vm.Failures():
			errs = append(errs, fmt.Errorf("%s: %w", f.Name, f.Err))
		default:
			return errors.Join(errs...)
		}
	}
}

func (a *app) close() {
	if a.vm != nil {
		if err := a.vm.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to stop view model")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close store")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.tel.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to shut down telemetry")
	}
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q: must be a positive integer", arg)
	}
	return id, nil
}
