// Package db embeds the database schema applied at startup.
package db

import _ "embed"

// Schema contains the DDL for all application tables. Statements are
// idempotent so re-running them against an existing database is safe.
//
//go:embed migrations/001_schema.sql
var Schema string
