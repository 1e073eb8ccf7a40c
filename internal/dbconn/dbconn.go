// Package dbconn opens PostgreSQL connections for a line.
package dbconn

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	// pgx database/sql driver, registered as "pgx".
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/leapstack-labs/codecheck/internal/registry"
)

// Options tune how connections are opened.
type Options struct {
	// SSLMode is passed as sslmode; empty means "disable".
	SSLMode string
	// ConnectTimeout bounds the TCP connect and startup; zero leaves it to the driver.
	ConnectTimeout time.Duration
}

// Opener opens one database handle for a line.
type Opener interface {
	Open(ctx context.Context, line registry.Line) (*sql.DB, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, line registry.Line) (*sql.DB, error)

// Open calls f.
func (f OpenerFunc) Open(ctx context.Context, line registry.Line) (*sql.DB, error) {
	return f(ctx, line)
}

// PgxOpener opens connections through the pgx stdlib driver.
type PgxOpener struct {
	Options Options
	Logger  *slog.Logger
}

// NewPgxOpener creates an opener. If logger is nil, a discard logger is used.
func NewPgxOpener(opts Options, logger *slog.Logger) *PgxOpener {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &PgxOpener{Options: opts, Logger: logger}
}

// Open connects to the line's database and verifies the connection.
// The returned handle is limited to a single connection.
func (o *PgxOpener) Open(ctx context.Context, line registry.Line) (*sql.DB, error) {
	o.Logger.Debug("connecting to postgres",
		slog.String("host", line.Host),
		slog.String("port", line.Port),
		slog.String("database", line.Database))

	db, err := sql.Open("pgx", BuildDSN(line, o.Options))
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// BuildDSN constructs a key=value PostgreSQL connection string for line.
func BuildDSN(line registry.Line, opts Options) string {
	host := line.Host
	if host == "" {
		host = "localhost"
	}

	port := line.Port
	if port == "" {
		port = "5432"
	}

	sslmode := opts.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}

	parts := []string{
		"host=" + quoteValue(host),
		"port=" + quoteValue(port),
		"dbname=" + quoteValue(line.Database),
		"sslmode=" + quoteValue(sslmode),
	}
	if line.User != "" {
		parts = append(parts, "user="+quoteValue(line.User))
	}
	if line.Password != "" {
		parts = append(parts, "password="+quoteValue(line.Password))
	}
	if opts.ConnectTimeout > 0 {
		secs := int(opts.ConnectTimeout / time.Second)
		if secs < 1 {
			secs = 1
		}
		parts = append(parts, fmt.Sprintf("connect_timeout=%d", secs))
	}
	return strings.Join(parts, " ")
}

// quoteValue single-quotes a DSN value when it is empty or contains
// whitespace, quotes or backslashes.
func quoteValue(v string) string {
	if v != "" && !strings.ContainsAny(v, " \t\n'\\") {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}
