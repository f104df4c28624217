// Package db embeds the database schema.
package db

import _ "embed"

// Schema creates the record, slot, catalog and order tables. Every statement
// is safe to run against an already migrated database.
//
//go:embed migrations/001_schema.sql
var Schema string
