package main

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"

	"github.com/golang-migrate/migrate"
	"github.com/golang-migrate/migrate/database/postgres"
	_ "github.com/golang-migrate/migrate/source/file"
	dbconf "github.com/kthomas/go-db-config"
	"github.com/provideplatform/attestation/common"
)

const defaultMigrationsSourceURL = "file://./ops/migrations"

func migrationsSourceURL() string {
	if os.Getenv("MIGRATIONS_SOURCE_URL") != "" {
		return os.Getenv("MIGRATIONS_SOURCE_URL")
	}
	return defaultMigrationsSourceURL
}

func dataSourceName(cfg *dbconf.DBConfig) string {
	return fmt.Sprintf(
		"postgres://%s:%d/%s?user=%s&password=%s&sslmode=%s",
		cfg.DatabaseHost,
		cfg.DatabasePort,
		cfg.DatabaseName,
		cfg.DatabaseUser,
		url.QueryEscape(cfg.DatabasePassword),
		cfg.DatabaseSSLMode,
	)
}

func main() {
	cfg := dbconf.GetDBConfig()

	db, err := sql.Open("postgres", dataSourceName(cfg))
	if err != nil {
		common.Log.Panicf("migrations failed to open database %s; %s", cfg.DatabaseName, err.Error())
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		common.Log.Panicf("migrations failed to initialize postgres driver; %s", err.Error())
	}

	m, err := migrate.NewWithDatabaseInstance(migrationsSourceURL(), cfg.DatabaseName, driver)
	if err != nil {
		common.Log.Panicf("migrations failed to initialize from %s; %s", migrationsSourceURL(), err.Error())
	}

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		common.Log.Panicf("migrations failed; %s", err.Error())
	}

	common.Log.Debugf("migrations applied to %s", cfg.DatabaseName)
}
