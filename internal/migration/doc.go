/*
Package migration provides versioned database schema migration
management for Postgres, built on golang-migrate.

# Overview

SQL migration files for each tracked schema are embedded via embed.FS
and applied through the golang-migrate engine, giving forward migration,
rollback, step execution, jump-to-version, and forced version resets.

SQLite deployments (local development, tests) do not go through this
package; they use gorm.AutoMigrate instead (see
internal/authstore.Store.AutoMigrate), since golang-migrate's sqlite
driver requires a cgo dependency this module does not otherwise carry.

# Core types

  - Migrator: the migration interface — Up/Down/DownAll/Steps/Goto/
    Force/Version/Status/Info/Close.
  - DefaultMigrator: the default Migrator implementation, wrapping a
    golang-migrate instance and its database connection.
  - Config: migration configuration — database type, connection URL,
    migration table name, lock timeout.
  - DatabaseType: the database type enum (postgres only).
  - MigrationStatus / MigrationInfo: migration status and summary
    information.
  - CLI: a command-line wrapper around Migrator with formatted output.

# Capabilities

  - Factory functions: NewMigrator, NewMigratorFromURL, and
    NewMigratorFromAuthConfig (bound to config.AuthConfig) create a
    migrator from different configuration sources.
  - CLI integration: CLI exposes RunUp/RunDown/RunStatus/RunInfo for
    terminal-facing formatted output.
  - Helpers: ParseDatabaseType parses a type string, BuildDatabaseURL
    assembles a Postgres connection URL.
*/
package migration
