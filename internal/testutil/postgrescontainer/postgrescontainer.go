package postgrescontainer

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/adeilh/skvdb/internal/testutil/docker"
)

const (
	User     = "skvdb"
	Password = "secret"
	Database = "skvdb_test"
)

var container = &docker.Container{
	Dockerfile:    "Dockerfile.postgres.test",
	Image:         "skvdb-postgres-test",
	Name:          "skvdb-postgres-test",
	HostPort:      "55432",
	ContainerPort: "5432",
	ReadyTimeout:  10 * time.Second,
}

func init() { container.Ready = ping }

// Addr returns host:port for connecting to the test Postgres instance.
func Addr() string { return container.Addr() }

// DSN returns a lib/pq formatted connection string.
func DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable", User, Password, Addr(), Database)
}

// Setup builds and launches the Postgres container if it isn't already running.
func Setup() error { return container.Setup() }

// Teardown stops the container launched by Setup.
func Teardown() error { return container.Teardown() }

func ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	db, err := sql.Open("postgres", DSN())
	if err != nil {
		return err
	}
	defer db.Close()
	return db.PingContext(ctx)
}
