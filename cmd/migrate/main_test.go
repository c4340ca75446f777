package main

import (
	"testing"

	dbconf "github.com/kthomas/go-db-config"
	"github.com/stretchr/testify/assert"
)

func TestDataSourceName(t *testing.T) {
	dsn := dataSourceName(&dbconf.DBConfig{
		DatabaseHost:     "localhost",
		DatabasePort:     5433,
		DatabaseName:     "attestation_dev",
		DatabaseUser:     "attestation",
		DatabasePassword: "p@ss word",
		DatabaseSSLMode:  "disable",
	})
	assert.Equal(t, "postgres://localhost:5433/attestation_dev?user=attestation&password=p%40ss+word&sslmode=disable", dsn)
}

func TestMigrationsSourceURL(t *testing.T) {
	t.Setenv("MIGRATIONS_SOURCE_URL", "")
	assert.Equal(t, defaultMigrationsSourceURL, migrationsSourceURL())

	t.Setenv("MIGRATIONS_SOURCE_URL", "file:///opt/migrations")
	assert.Equal(t, "file:///opt/migrations", migrationsSourceURL())
}
