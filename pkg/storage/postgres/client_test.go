package postgres_test

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"volumetracker/config"
	"volumetracker/internal/quote"
	"volumetracker/pkg/storage/postgres"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testConfig returns the database used by the integration tests. They only
// run when POSTGRES_TEST_HOST is set.
func testConfig(t *testing.T) config.PostgresConfig {
	t.Helper()
	host := os.Getenv("POSTGRES_TEST_HOST")
	if host == "" {
		t.Skip("POSTGRES_TEST_HOST not set")
	}

	port := 5432
	if p, err := strconv.Atoi(os.Getenv("POSTGRES_TEST_PORT")); err == nil {
		port = p
	}
	return config.PostgresConfig{
		Host:     host,
		Port:     port,
		User:     envOr("POSTGRES_TEST_USER", "postgres"),
		Password: os.Getenv("POSTGRES_TEST_PASSWORD"),
		DBName:   "volumetracker_test",
		SSLMode:  "disable",
		TimeZone: "UTC",

		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Minute,
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// go test -v --run ^TestPostgresInvalidDSN$
func TestPostgresInvalidDSN(t *testing.T) {
	invalidDSN := "host=invalid.invalid port=5432 user=fail password=fail dbname=fail sslmode=disable connect_timeout=2"

	_, err := postgres.NewClient(invalidDSN)
	if err == nil {
		t.Fatal("expected error for invalid DSN, got nil")
	}
}

// go test -v --run TestSnapshotRecordConversion
func TestSnapshotRecordConversion(t *testing.T) {
	snap := quote.Snapshot{
		Timestamp:        time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
		Symbol:           "NSE:SBIN-EQ",
		CumulativeVolume: 1700,
		Quantity:         200,
		LTP:              100.5,
		SellVolume:       200,
		Mode:             quote.ModeLive,
	}

	rec := postgres.ToSnapshotRecord(snap)
	assert.Equal(t, "live", rec.Mode)
	assert.Equal(t, "latest_snapshot", rec.TableName())
	assert.Equal(t, snap, rec.Snapshot())
}

// go test -v --run TestSnapshotUpsert
func TestSnapshotUpsert(t *testing.T) {
	cfg := testConfig(t)

	client, err := postgres.InitializeAndMigrateSnapshotRecord(cfg, true)
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.True(t, client.IsHealthy(ctx))

	const symbol = "NSE:TEST-EQ"
	t.Cleanup(func() { client.DeleteSnapshot(context.Background(), symbol) })

	ts := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	first := quote.Snapshot{Timestamp: ts, Symbol: symbol, CumulativeVolume: 1000, LTP: 100, Mode: quote.ModeLive}
	second := quote.Snapshot{Timestamp: ts.Add(2 * time.Second), Symbol: symbol, CumulativeVolume: 1500,
		Quantity: 500, LTP: 101, BuyVolume: 500, Mode: quote.ModeLive}

	require.NoError(t, client.Publish(ctx, []quote.Snapshot{first}))
	require.NoError(t, client.UpsertSnapshots(ctx, []quote.Snapshot{first, second}), "duplicates in a batch keep the last")

	got, err := client.GetSnapshot(ctx, symbol)
	require.NoError(t, err)
	assert.Equal(t, second.CumulativeVolume, got.CumulativeVolume)
	assert.Equal(t, second.BuyVolume, got.BuyVolume)
	assert.True(t, second.Timestamp.Equal(got.Timestamp))

	all, err := client.ListSnapshots(ctx)
	require.NoError(t, err)
	count := 0
	for _, s := range all {
		if s.Symbol == symbol {
			count++
		}
	}
	assert.Equal(t, 1, count, "one row per symbol")
}
