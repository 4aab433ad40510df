// Package lifecycle parses lifecycle command flags and launches the
// lifecycle runtime.
package lifecycle

import (
	"context"
	"flag"
	"time"

	entrypoint "github.com/fableforge/fableforge/internal/platform/cmd"
	lifecycleserver "github.com/fableforge/fableforge/internal/services/lifecycle/app"
)

// Config holds lifecycle command configuration.
type Config struct {
	Port               int           `env:"FABLEFORGE_LIFECYCLE_PORT" envDefault:"8091"`
	DBPath             string        `env:"FABLEFORGE_LIFECYCLE_DB_PATH" envDefault:"data/lifecycle.db"`
	SweepInterval      time.Duration `env:"FABLEFORGE_LIFECYCLE_SWEEP_INTERVAL" envDefault:"30s"`
	DispatchInterval   time.Duration `env:"FABLEFORGE_LIFECYCLE_DISPATCH_INTERVAL" envDefault:"10s"`
	AccountGrace       time.Duration `env:"FABLEFORGE_LIFECYCLE_ACCOUNT_GRACE" envDefault:"720h"`
	DefaultGrace       time.Duration `env:"FABLEFORGE_LIFECYCLE_DEFAULT_GRACE" envDefault:"168h"`
	ConfirmationTTL    time.Duration `env:"FABLEFORGE_LIFECYCLE_CONFIRMATION_TTL" envDefault:"168h"`
	ConsentTTL         time.Duration `env:"FABLEFORGE_LIFECYCLE_CONSENT_TTL" envDefault:"336h"`
	InactivityLimit    time.Duration `env:"FABLEFORGE_LIFECYCLE_INACTIVITY_LIMIT" envDefault:"8760h"`
	DormancyPeriod     time.Duration `env:"FABLEFORGE_LIFECYCLE_DORMANCY_PERIOD" envDefault:"2160h"`
	FailedRetryCoolOff time.Duration `env:"FABLEFORGE_LIFECYCLE_FAILED_RETRY_COOL_OFF" envDefault:"1h"`
	MaxItemAttempts    int           `env:"FABLEFORGE_LIFECYCLE_MAX_ITEM_ATTEMPTS" envDefault:"3"`
	RetryBackoff       time.Duration `env:"FABLEFORGE_LIFECYCLE_RETRY_BACKOFF" envDefault:"5s"`
	RetryMaxDelay      time.Duration `env:"FABLEFORGE_LIFECYCLE_RETRY_MAX_DELAY" envDefault:"5m"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The lifecycle health gRPC server port")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The lifecycle SQLite database path")
	fs.DurationVar(&cfg.SweepInterval, "sweep-interval", cfg.SweepInterval, "Deletion and retention sweep interval")
	fs.DurationVar(&cfg.DispatchInterval, "dispatch-interval", cfg.DispatchInterval, "Notification dispatch interval")
	fs.DurationVar(&cfg.AccountGrace, "account-grace", cfg.AccountGrace, "Grace period for account deletion requests")
	fs.DurationVar(&cfg.DefaultGrace, "default-grace", cfg.DefaultGrace, "Grace period for non-account deletion requests")
	fs.DurationVar(&cfg.ConfirmationTTL, "confirmation-ttl", cfg.ConfirmationTTL, "Confirmation token lifetime")
	fs.DurationVar(&cfg.ConsentTTL, "consent-ttl", cfg.ConsentTTL, "Guardian consent token lifetime")
	fs.DurationVar(&cfg.InactivityLimit, "inactivity-limit", cfg.InactivityLimit, "Idle duration before retention schedules deletion")
	fs.DurationVar(&cfg.DormancyPeriod, "dormancy-period", cfg.DormancyPeriod, "Hibernation duration before account purge")
	fs.DurationVar(&cfg.FailedRetryCoolOff, "failed-retry-cool-off", cfg.FailedRetryCoolOff, "Delay before re-sweeping failed requests")
	fs.IntVar(&cfg.MaxItemAttempts, "max-item-attempts", cfg.MaxItemAttempts, "Maximum attempts per cascade step")
	fs.DurationVar(&cfg.RetryBackoff, "retry-backoff", cfg.RetryBackoff, "Base cascade step retry delay")
	fs.DurationVar(&cfg.RetryMaxDelay, "retry-max-delay", cfg.RetryMaxDelay, "Maximum cascade step retry delay")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the lifecycle runtime.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceLifecycle, func(context.Context) error {
		return lifecycleserver.Run(ctx, lifecycleserver.RuntimeConfig{
			Port:               cfg.Port,
			DBPath:             cfg.DBPath,
			SweepInterval:      cfg.SweepInterval,
			DispatchInterval:   cfg.DispatchInterval,
			AccountGrace:       cfg.AccountGrace,
			DefaultGrace:       cfg.DefaultGrace,
			ConfirmationTTL:    cfg.ConfirmationTTL,
			ConsentTTL:         cfg.ConsentTTL,
			InactivityLimit:    cfg.InactivityLimit,
			DormancyPeriod:     cfg.DormancyPeriod,
			FailedRetryCoolOff: cfg.FailedRetryCoolOff,
			MaxItemAttempts:    cfg.MaxItemAttempts,
			RetryBackoff:       cfg.RetryBackoff,
			RetryMaxDelay:      cfg.RetryMaxDelay,
		})
	})
}
