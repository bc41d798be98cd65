package main

import (
	"context"
	"strings"

	"github.com/go-redis/redis"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/cafebazaar/thumbsup/internal/core"
	"github.com/cafebazaar/thumbsup/internal/ledger/memory"
	postgresLedger "github.com/cafebazaar/thumbsup/internal/ledger/postgres"
	redisLedger "github.com/cafebazaar/thumbsup/internal/ledger/redis"
	sqliteLedger "github.com/cafebazaar/thumbsup/internal/ledger/sqlite"
	"github.com/cafebazaar/thumbsup/pkg/thumbsup"
)

func loadConfigOrPanic(cmd *cobra.Command) *Config {
	config, err := LoadConfig(cmd, envPrefix)
	if err != nil {
		log.WithError(err).Panic("Failed to load configurations")
	}
	return config
}

func openLedgerOrPanic(config *Config) thumbsup.Ledger {
	switch strings.ToLower(config.Backend) {
	case "memory":
		log.Warn("memory backend keeps no votes between invocations")
		return memory.New()

	case "redis":
		return connectToRedisOrPanic(config)

	case "sqlite":
		return openSQLiteOrPanic(config)

	case "postgres":
		return postgresLedger.New(connectToPostgresOrPanic(config))

	default:
		log.Panicf("unknown backend: %v", config.Backend)
		return nil
	}
}

func connectToRedisOrPanic(config *Config) thumbsup.Ledger {
	client := redis.NewClient(&redis.Options{Addr: config.RedisAddress})
	if err := client.Ping().Err(); err != nil {
		panicWithError(err, "failed to reach redis at %v", config.RedisAddress)
	}

	return redisLedger.New(client, redisLedger.WithPrefix(config.RedisPrefix))
}

func openSQLiteOrPanic(config *Config) thumbsup.Ledger {
	ledger, err := sqliteLedger.Open(config.SQLitePath)
	if err != nil {
		panicWithError(err, "failed to open sqlite ledger at %v", config.SQLitePath)
	}
	return ledger
}

func connectToPostgresOrPanic(config *Config) *gorm.DB {
	db, err := postgresLedger.Connect(config.PostgresDSN)
	if err != nil {
		panicWithError(err, "failed to connect to postgres")
	}
	return db
}

func getService(ledger thumbsup.Ledger, config *Config) thumbsup.Service {
	options := []core.Option{core.WithConflictRetries(config.ConflictRetries)}

	for _, dimensions := range config.Dimensions {
		options = append(options, core.WithDimensions(dimensions.Type, dimensions.Names...))
	}

	return core.New(ledger, options...)
}

func migrateOrPanic(ctx context.Context, config *Config) {
	switch strings.ToLower(config.Backend) {
	case "sqlite":
		// opening applies pending migrations
		closeOrLog(openSQLiteOrPanic(config))

	case "postgres":
		db := connectToPostgresOrPanic(config)
		ledger := postgresLedger.New(db)
		defer closeOrLog(ledger)

		if err := postgresLedger.Migrate(ctx, db); err != nil {
			panicWithError(err, "failed to migrate postgres")
		}

	default:
		log.Infof("backend %v needs no migration", config.Backend)
	}
}

func closeOrLog(closer interface{ Close() error }) {
	if err := closer.Close(); err != nil {
		log.WithError(err).Error("failed to close ledger")
	}
}

func panicWithError(err error, format string, args ...interface{}) {
	log.WithError(err).Panicf(format, args...)
}
