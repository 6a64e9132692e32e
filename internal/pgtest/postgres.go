package pgtest

import (
	"context"
	"testing"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	pgcontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/kbukum/dbscope/database"
)

// Image is the PostgreSQL image the container runs.
const Image = "docker.io/postgres:16-alpine"

// Credentials of the container's superuser. The user may create and drop
// databases, which temporary databases need.
const (
	User     = "dbscope"
	Password = "dbscope"
	Database = "dbscope"
)

const postgresPort = nat.Port("5432/tcp")

// SetupPostgres starts a PostgreSQL container and returns a Config for its
// default database. The container is terminated during cleanup of tb.
//
// The test is skipped in -short mode.
func SetupPostgres(tb testing.TB, opts ...testcontainers.ContainerCustomizer) database.Config {
	tb.Helper()

	if testing.Short() {
		tb.Skip("Skipping container-based test in short mode...")
	}

	ctx := context.Background()

	customizers := containerOptions(tb,
		pgcontainer.WithDatabase(Database),
		pgcontainer.WithUsername(User),
		pgcontainer.WithPassword(Password),
		pgcontainer.BasicWaitStrategies(),
	)
	container, err := pgcontainer.Run(ctx, Image, append(customizers, opts...)...)
	if err != nil {
		tb.Fatal("Failed to run postgres container:", err)
	}
	tb.Cleanup(func() {
		tb.Logf("Terminating postgres container %q...", container.GetContainerID())
		if err := container.Terminate(ctx); err != nil {
			tb.Error("Encountered an error during cleanup; terminate container:", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		tb.Fatal("Failed to get container host:", err)
	}
	port, err := container.MappedPort(ctx, postgresPort)
	if err != nil {
		tb.Fatal("Failed to get mapped port:", err)
	}

	cfg := database.Config{
		Driver:        database.DriverPostgres,
		Name:          Database,
		Host:          host,
		Port:          port.Int(),
		User:          User,
		Password:      Password,
		SSLMode:       "disable",
		AdminDatabase: Database,
		LogLevel:      "silent",
	}
	cfg.ApplyDefaults()

	tb.Cleanup(func() {
		if tb.Failed() && *Inspect {
			tb.Logf("Container %v is still running for inspection (Ctrl+C to terminate)...", container.GetContainerID())
			tb.Logf("DSN = %s", database.PostgresDSN(cfg, cfg.Name))
			waitForInspection()
		}
	})

	return cfg
}
