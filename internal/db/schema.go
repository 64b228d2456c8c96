package db

import "embed"

//go:embed schema.sql
var Schema string

// Migrations holds the postgres migrations, applied with golang-migrate.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// Dialect selects the placeholder style of the queries.
type Dialect int

const (
	// DialectSQLite covers both local sqlite files and remote libsql databases.
	DialectSQLite Dialect = iota
	DialectPostgres
)
