package database

import (
	"context"
	stdsql "database/sql"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// newTestClient starts a throwaway PostgreSQL container, opens a pool
// against it, and applies the embedded migrations.
func newTestClient(t *testing.T) *Client {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := stdsql.Open("pgx", connStr)
	require.NoError(t, err)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	require.NoError(t, runMigrations(ctx, db, Config{Database: "test"}))

	client := NewClientFromDB(db)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestDatabaseClient_ConnectionPool(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.DB().PingContext(ctx))

	health, err := Health(ctx, client.DB())
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)
	assert.Greater(t, health.MaxOpenConns, 0)
}

func TestRulesTable_Roundtrip(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	db := client.DB()

	_, err := db.ExecContext(ctx,
		`INSERT INTO rules (id, name, status, query, dialect, interval_seconds,
			lookback_seconds, threshold_count, severity, created_at, updated_at, version)
		VALUES ($1, $2, 'enabled', 'select 1', 'kql', 60, 300, 1, 'high', now(), now(), 1)`,
		"rule-1", "suspicious login burst")
	require.NoError(t, err)

	var name string
	err = db.QueryRowContext(ctx, `SELECT name FROM rules WHERE id = $1`, "rule-1").Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "suspicious login burst", name)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "valid config",
			cfg: Config{
				Host: "localhost", Port: 5432, User: "test", Password: "test",
				Database: "test", SSLMode: "disable", MaxOpenConns: 10, MaxIdleConns: 5,
			},
			wantErr: false,
		},
		{
			name:    "missing password",
			cfg:     Config{Host: "localhost", Port: 5432, User: "test", Database: "test", MaxOpenConns: 10, MaxIdleConns: 5},
			wantErr: true,
		},
		{
			name:    "idle conns exceed max conns",
			cfg:     Config{Host: "localhost", Port: 5432, User: "test", Password: "test", Database: "test", MaxOpenConns: 5, MaxIdleConns: 10},
			wantErr: true,
		},
		{
			name:    "zero max open conns",
			cfg:     Config{Host: "localhost", Port: 5432, User: "test", Password: "test", Database: "test", MaxOpenConns: 0, MaxIdleConns: 0},
			wantErr: true,
		},
		{
			name:    "negative idle conns",
			cfg:     Config{Host: "localhost", Port: 5432, User: "test", Password: "test", Database: "test", MaxOpenConns: 10, MaxIdleConns: -1},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
