// Package main runs the migration Temporal worker.
package main

import (
	"context"
	"log/slog"
	"os"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/cartmigrate/migration-core/internal/activities"
	"github.com/cartmigrate/migration-core/internal/convert"
	"github.com/cartmigrate/migration-core/internal/gateway/local"
	"github.com/cartmigrate/migration-core/internal/lookup"
	"github.com/cartmigrate/migration-core/internal/mapping"
	"github.com/cartmigrate/migration-core/internal/run"
	"github.com/cartmigrate/migration-core/internal/runlog"
	"github.com/cartmigrate/migration-core/internal/staging"
)

const (
	defaultTaskQueue    = "migration-core"
	defaultTemporalAddr = "127.0.0.1:7233"
	defaultNamespace    = "default"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)
	ctx := context.Background()

	temporalAddr := getEnv("TEMPORAL_ADDRESS", defaultTemporalAddr)
	namespace := getEnv("TEMPORAL_NAMESPACE", defaultNamespace)
	taskQueue := getEnv("MIGRATION_TASK_QUEUE", defaultTaskQueue)

	// Identity mapping store: Postgres when configured, memory otherwise.
	var mappings mapping.Service
	if dsn := os.Getenv("MIGRATION_MAPPING_DATABASE_URL"); dsn != "" {
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			logger.Error("connect mapping store", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		if _, err := pool.Exec(ctx, mapping.Schema()); err != nil {
			logger.Error("provision mapping schema", "error", err)
			os.Exit(1)
		}
		mappings = mapping.NewPostgresStore(pool)
	} else {
		logger.Warn("MIGRATION_MAPPING_DATABASE_URL not set, using in-memory mapping store")
		mappings = mapping.NewMemoryStore()
	}

	// Run-log sink and staging: object storage when configured.
	var (
		logs    runlog.Sink
		flusher activities.LogFlusher
		stage   staging.Provider
	)
	if endpoint := os.Getenv("MIGRATION_OBJECT_STORE_URL"); endpoint != "" {
		sink, err := runlog.NewObjectSinkFromConfig(&runlog.ObjectSinkConfig{
			EndpointURL:     endpoint,
			AccessKeyID:     os.Getenv("MIGRATION_OBJECT_STORE_ACCESS_KEY"),
			SecretAccessKey: os.Getenv("MIGRATION_OBJECT_STORE_SECRET_KEY"),
			Region:          os.Getenv("MIGRATION_OBJECT_STORE_REGION"),
			Bucket:          getEnv("MIGRATION_RUNLOG_BUCKET", "migration-runlogs"),
			FlushEvery:      getEnvInt("MIGRATION_RUNLOG_FLUSH_EVERY", 500),
		})
		if err != nil {
			logger.Error("create run-log sink", "error", err)
			os.Exit(1)
		}
		logs = sink
		flusher = sink

		provider, err := staging.NewMinioProvider(&staging.MinioConfig{
			EndpointURL:     endpoint,
			AccessKeyID:     os.Getenv("MIGRATION_OBJECT_STORE_ACCESS_KEY"),
			SecretAccessKey: os.Getenv("MIGRATION_OBJECT_STORE_SECRET_KEY"),
			Region:          os.Getenv("MIGRATION_OBJECT_STORE_REGION"),
			Bucket:          getEnv("MIGRATION_STAGING_BUCKET", "migration-staging"),
		})
		if err != nil {
			logger.Error("create staging provider", "error", err)
			os.Exit(1)
		}
		stage = provider
	} else {
		logger.Warn("MIGRATION_OBJECT_STORE_URL not set, using in-memory run log and staging")
		logs = runlog.NewMemorySink()
		stage = staging.NewMemoryProvider(0)
	}

	// Row source: local SQL gateway into the source platform database.
	source, err := local.NewReader(&local.Config{
		Driver:           getEnv("MIGRATION_SOURCE_DRIVER", "postgres"),
		ConnectionString: os.Getenv("MIGRATION_SOURCE_DATABASE_URL"),
		TablePrefix:      os.Getenv("MIGRATION_SOURCE_TABLE_PREFIX"),
	})
	if err != nil {
		logger.Error("open source database", "error", err)
		os.Exit(1)
	}
	defer source.Close()

	registry := convert.NewDefaultRegistry(convert.Deps{
		Mappings: mappings,
		Lookups:  lookup.NewResolver(mappings),
		Logs:     logs,
		Defaults: convert.Defaults{
			SalesChannelID:  os.Getenv("MIGRATION_DEFAULT_SALES_CHANNEL_ID"),
			CustomerGroupID: os.Getenv("MIGRATION_DEFAULT_CUSTOMER_GROUP_ID"),
		},
	})
	service := run.NewService(registry, mappings, source, stage, logger)

	logger.Info("starting migration worker", "address", temporalAddr, "namespace", namespace, "queue", taskQueue)

	c, err := client.Dial(client.Options{
		HostPort:  temporalAddr,
		Namespace: namespace,
	})
	if err != nil {
		logger.Error("create temporal client", "error", err)
		os.Exit(1)
	}
	defer c.Close()

	w := worker.New(c, taskQueue, worker.Options{})

	acts := activities.NewActivities(service, mappings, flusher)
	w.RegisterActivity(acts.SeedPremappings)
	w.RegisterActivity(acts.ProcessDataSet)
	w.RegisterActivity(acts.ProcessSelection)

	logger.Info("registered activities", "count", 3)

	if err := w.Run(worker.InterruptCh()); err != nil {
		logger.Error("worker failed", "error", err)
		os.Exit(1)
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
