package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is centralized process configuration.
// Keep infra values here and pass typed config into builders.
type Config struct {
	ServiceName  string   `env:"SERVICE_NAME" envDefault:"wheelshare"`
	HTTPPort     string   `env:"HTTP_PORT" envDefault:"8080"`
	PostgresDSN  string   `env:"POSTGRES_DSN"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:"," envDefault:"localhost:9092"`

	// VotingWindow sets the proposal deadline when a create request does
	// not carry an explicit one.
	VotingWindow time.Duration `env:"VOTING_WINDOW" envDefault:"168h"`

	// CancelOnlyBeforeVotes restricts proposer cancellation to proposals
	// with no recorded votes.
	CancelOnlyBeforeVotes bool `env:"CANCEL_ONLY_BEFORE_VOTES" envDefault:"false"`

	WorkerPollInterval time.Duration `env:"WORKER_POLL_INTERVAL" envDefault:"2s"`
	SweeperBatchSize   int           `env:"SWEEPER_BATCH_SIZE" envDefault:"100"`
	OutboxBatchSize    int           `env:"OUTBOX_BATCH_SIZE" envDefault:"100"`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
