package database

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/syllabus-approval-api/pkg/config"
)

func TestDSN(t *testing.T) {
	cfg := config.DatabaseConfig{
		Host:     "db",
		Port:     5433,
		User:     "app",
		Password: "secret",
		Name:     "syllabus",
		SSLMode:  "disable",
	}
	assert.Equal(t, "host=db port=5433 user=app password=secret dbname=syllabus sslmode=disable application_name=syllabus-approval-api connect_timeout=5", DSN(cfg))

	cfg.StatementTimeout = 15 * time.Second
	assert.Contains(t, DSN(cfg), "statement_timeout=15000")
}

func TestConfigurePool(t *testing.T) {
	raw, _, err := sqlmock.New()
	require.NoError(t, err)
	db := sqlx.NewDb(raw, "sqlmock")
	defer db.Close()

	configurePool(db, config.DatabaseConfig{MaxOpenConns: 7})
	assert.Equal(t, 7, db.Stats().MaxOpenConnections)
}
