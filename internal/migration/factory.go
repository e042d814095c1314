package migration

import (
	"fmt"

	appconfig "github.com/shreya-uprety/medforce-gateway/config"
)

// NewMigratorFromAuthConfig creates a migrator for the authstore database
// described by cfg. Only the "postgres" driver runs schema migrations
// through golang-migrate; "sqlite" deployments rely on gorm.AutoMigrate
// instead (see internal/authstore.Store.AutoMigrate) and this function
// returns an error if called for one.
func NewMigratorFromAuthConfig(cfg appconfig.AuthConfig) (*DefaultMigrator, error) {
	dbType, err := ParseDatabaseType(cfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("invalid auth database type: %w", err)
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("auth database DSN is required")
	}

	migCfg := &Config{
		DatabaseType: dbType,
		DatabaseURL:  cfg.DSN,
		TableName:    "schema_migrations",
	}
	return NewMigrator(migCfg)
}

// NewMigratorFromURL creates a new migrator from a database URL
func NewMigratorFromURL(dbType, dbURL string) (*DefaultMigrator, error) {
	dt, err := ParseDatabaseType(dbType)
	if err != nil {
		return nil, err
	}

	return NewMigrator(&Config{
		DatabaseType: dt,
		DatabaseURL:  dbURL,
		TableName:    "schema_migrations",
	})
}
