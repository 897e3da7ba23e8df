// Package db embeds the SQL schema so the binary migrates itself on start.
package db

import _ "embed"

// Schema holds the full DDL for the storefront checkout tables.
//
//go:embed migrations/001_schema.sql
var Schema string
