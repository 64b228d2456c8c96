package store

import (
	"context"
	"io"
	"log"
	"os"
	"strconv"
	"testing"
	"time"

	"stockharvest/internal/components/testutil"
	"stockharvest/internal/db"

	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupPostgres(t *testing.T) Store {
	if os.Getenv("STOCKHARVEST_TEST_POSTGRES") != "1" {
		t.Skip("set STOCKHARVEST_TEST_POSTGRES=1 to run postgres tests")
	}
	ctx := context.Background()

	// suppress logging
	testcontainers.Logger = log.New(io.Discard, "", 0)

	container, err := testcontainers.GenericContainer(
		ctx,
		testcontainers.GenericContainerRequest{
			Started: true,
			ContainerRequest: testcontainers.ContainerRequest{
				Image:        "postgres:16-alpine",
				ExposedPorts: []string{"5432/tcp"},
				Env: map[string]string{
					"POSTGRES_USER":     "stockharvest",
					"POSTGRES_PASSWORD": "stockharvest",
					"POSTGRES_DB":       "stockharvest",
				},
				WaitingFor: wait.ForSQL("5432/tcp", "pgx", func(host string, port nat.Port) string {
					return db.Config{
						Host:     host,
						Port:     port.Int(),
						User:     "stockharvest",
						Password: "stockharvest",
						Name:     "stockharvest",
					}.PostgresURL("postgres")
				}).WithStartupTimeout(time.Minute),
			},
		},
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		err := container.Terminate(context.Background())
		if err != nil {
			t.Error(err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)
	portNum, err := strconv.Atoi(port.Port())
	require.NoError(t, err)

	config := db.Config{
		Driver:   db.DriverPostgres,
		Host:     host,
		Port:     portNum,
		User:     "stockharvest",
		Password: "stockharvest",
		Name:     "stockharvest",
	}
	require.NoError(t, config.Validate())
	database, err := config.Open()
	require.NoError(t, err)
	t.Cleanup(func() {
		database.Close()
	})

	return New(database, config.Dialect(), &testutil.RecordingAPI{})
}

func TestPostgresStore(t *testing.T) {
	s := setupPostgres(t)
	ctx := context.Background()

	_, err := s.UpsertRatings(ctx, sampleRecords())
	require.NoError(t, err)
	_, err = s.UpsertRatings(ctx, sampleRecords())
	require.NoError(t, err)

	stored, err := s.Ratings(ctx, "AAPL")
	require.NoError(t, err)
	require.Len(t, stored, 2)
	require.Equal(t, "2024-01-05", stored[0].Date.String())

	require.NoError(t, s.AdvanceFreshness(ctx, "A", day(2024, time.January, 1)))
	require.NoError(t, s.AdvanceFreshness(ctx, "B", day(2024, time.January, 3)))
	ticker, ok, err := s.OldestTicker(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "A", ticker)

	require.NoError(t, s.AdvanceFreshness(ctx, "A", day(2024, time.January, 5)))
	require.NoError(t, s.AdvanceFreshness(ctx, "A", day(2023, time.January, 5)))
	ticker, _, err = s.OldestTicker(ctx)
	require.NoError(t, err)
	require.Equal(t, "B", ticker)
}
