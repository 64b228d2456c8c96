package db

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	devenv "stockharvest/dev/env"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverLibsql   = "libsql"
	DriverPostgres = "postgres"
)

type Config struct {
	Driver string `json:"driver"`

	// sqlite
	File string `json:"file"`

	// libsql
	Url       string `json:"url"`
	AuthToken string `json:"auth_token"`

	// postgres
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Name     string `json:"name"`
	SSLMode  string `json:"sslmode"`
}

func (c Config) Dialect() Dialect {
	if c.Driver == DriverPostgres {
		return DialectPostgres
	}
	return DialectSQLite
}

func (c Config) Validate() error {
	switch c.Driver {
	case DriverSQLite, "":
		if c.File == "" {
			return fmt.Errorf("database.file must be set for the sqlite driver")
		}
	case DriverLibsql:
		if c.Url == "" {
			return fmt.Errorf("database.url must be set for the libsql driver")
		}
	case DriverPostgres:
		if c.Host == "" || c.Name == "" || c.User == "" {
			return fmt.Errorf("database.host, database.name and database.user must be set for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown database driver '%s'", c.Driver)
	}
	return nil
}

// PostgresURL returns the connection string in the form golang-migrate and
// pgx both accept, with the given scheme.
func (c Config) PostgresURL(scheme string) string {
	port := c.Port
	if port == 0 {
		port = 5432
	}
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	u := url.URL{
		Scheme:   scheme,
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, port),
		Path:     "/" + c.Name,
		RawQuery: url.Values{"sslmode": {sslmode}}.Encode(),
	}
	return u.String()
}

// Open connects to the configured database and makes sure the schema exists.
func (c Config) Open() (*sql.DB, error) {
	switch c.Driver {
	case DriverSQLite, "":
		return c.openSQLite()
	case DriverLibsql:
		return c.openLibsql()
	case DriverPostgres:
		return c.openPostgres()
	}
	return nil, fmt.Errorf("unknown database driver '%s'", c.Driver)
}

func (c Config) openSQLite() (*sql.DB, error) {
	if c.File == "" {
		return nil, fmt.Errorf("a path was not specified")
	}
	dbpath, err := devenv.ResolvePath(c.File)
	if err != nil {
		return nil, err
	}

	_, statErr := os.Stat(dbpath)
	if os.IsNotExist(statErr) {
		f, err := os.Create(dbpath)
		if err != nil {
			return nil, err
		}
		f.Close()
	}

	database, err := sql.Open("sqlite", dbpath)
	if err != nil {
		return nil, err
	}
	// sqlite only allows a single writer, see:
	// https://stackoverflow.com/questions/35804884/sqlite-concurrent-writing-performance
	database.SetMaxOpenConns(1)
	_, err = database.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		database.Close()
		return nil, err
	}
	err = ApplySchema(database)
	if err != nil {
		database.Close()
		return nil, err
	}
	return database, nil
}

func (c Config) openLibsql() (*sql.DB, error) {
	dsn := c.Url
	if c.AuthToken != "" {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "authToken=" + url.QueryEscape(c.AuthToken)
	}
	database, err := sql.Open("libsql", dsn)
	if err != nil {
		return nil, err
	}
	err = ApplySchema(database)
	if err != nil {
		database.Close()
		return nil, err
	}
	return database, nil
}

func (c Config) openPostgres() (*sql.DB, error) {
	err := MigratePostgres(c.PostgresURL("pgx5"))
	if err != nil {
		return nil, err
	}
	return sql.Open("pgx", c.PostgresURL("postgres"))
}

// ApplySchema creates the sqlite tables if they do not exist yet. Statements
// are executed one at a time since remote libsql does not accept batches.
func ApplySchema(database *sql.DB) error {
	for _, stmt := range strings.Split(Schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		_, err := database.Exec(stmt)
		if err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// MigratePostgres runs the embedded migrations against the database at
// connString, which must use the pgx5:// scheme.
func MigratePostgres(connString string) error {
	source, err := iofs.New(Migrations, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, connString)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer m.Close()

	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}
