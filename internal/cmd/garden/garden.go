// Package garden parses garden command flags and launches the garden runtime.
package garden

import (
	"context"
	"flag"
	"time"

	gardenserver "github.com/harms-haus/memoriae/internal/garden/app"
	entrypoint "github.com/harms-haus/memoriae/internal/platform/cmd"
)

// Config holds garden command configuration.
type Config struct {
	Port   int    `env:"MEMORIAE_GARDEN_PORT" envDefault:"8093"`
	DBPath string `env:"MEMORIAE_GARDEN_DB_PATH" envDefault:"data/garden.db"`

	PollInterval  time.Duration `env:"MEMORIAE_GARDEN_POLL_INTERVAL" envDefault:"1s"`
	LeaseTTL      time.Duration `env:"MEMORIAE_GARDEN_LEASE_TTL" envDefault:"2m"`
	MaxAttempts   int           `env:"MEMORIAE_GARDEN_MAX_ATTEMPTS" envDefault:"3"`
	RetryBackoff  time.Duration `env:"MEMORIAE_GARDEN_RETRY_BACKOFF" envDefault:"10s"`
	RetryMaxDelay time.Duration `env:"MEMORIAE_GARDEN_RETRY_MAX_DELAY" envDefault:"5m"`
	JobTimeout    time.Duration `env:"MEMORIAE_GARDEN_JOB_TIMEOUT" envDefault:"2m"`

	SweepInterval time.Duration `env:"MEMORIAE_GARDEN_SWEEP_INTERVAL" envDefault:"1m"`
	OverdueGrace  time.Duration `env:"MEMORIAE_GARDEN_OVERDUE_GRACE" envDefault:"30m"`
	SnoozeMinutes int           `env:"MEMORIAE_GARDEN_SNOOZE_MINUTES" envDefault:"60"`
	DoneRetention time.Duration `env:"MEMORIAE_GARDEN_DONE_RETENTION" envDefault:"24h"`
	DeadRetention time.Duration `env:"MEMORIAE_GARDEN_DEAD_RETENTION" envDefault:"168h"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The garden health gRPC server port")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The garden SQLite database path")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Job queue poll interval")
	fs.DurationVar(&cfg.LeaseTTL, "lease-ttl", cfg.LeaseTTL, "Job claim lease duration")
	fs.IntVar(&cfg.MaxAttempts, "max-attempts", cfg.MaxAttempts, "Maximum processing attempts before dead-letter")
	fs.DurationVar(&cfg.RetryBackoff, "retry-backoff", cfg.RetryBackoff, "Base retry backoff delay")
	fs.DurationVar(&cfg.RetryMaxDelay, "retry-max-delay", cfg.RetryMaxDelay, "Maximum retry delay")
	fs.DurationVar(&cfg.JobTimeout, "job-timeout", cfg.JobTimeout, "Per-job automation execution timeout")
	fs.DurationVar(&cfg.SweepInterval, "sweep-interval", cfg.SweepInterval, "Maintenance sweep interval")
	fs.DurationVar(&cfg.OverdueGrace, "overdue-grace", cfg.OverdueGrace, "How long a reminder may sit overdue before auto-snooze")
	fs.IntVar(&cfg.SnoozeMinutes, "snooze-minutes", cfg.SnoozeMinutes, "Auto-snooze duration in minutes")
	fs.DurationVar(&cfg.DoneRetention, "done-retention", cfg.DoneRetention, "How long completed jobs are kept")
	fs.DurationVar(&cfg.DeadRetention, "dead-retention", cfg.DeadRetention, "How long dead jobs are kept for diagnostics")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the garden runtime.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceGarden, func(context.Context) error {
		return gardenserver.Run(ctx, gardenserver.RuntimeConfig{
			Port:          cfg.Port,
			DBPath:        cfg.DBPath,
			PollInterval:  cfg.PollInterval,
			LeaseTTL:      cfg.LeaseTTL,
			MaxAttempts:   cfg.MaxAttempts,
			RetryBackoff:  cfg.RetryBackoff,
			RetryMaxDelay: cfg.RetryMaxDelay,
			JobTimeout:    cfg.JobTimeout,
			SweepInterval: cfg.SweepInterval,
			OverdueGrace:  cfg.OverdueGrace,
			SnoozeMinutes: cfg.SnoozeMinutes,
			DoneRetention: cfg.DoneRetention,
			DeadRetention: cfg.DeadRetention,
		})
	})
}
