package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"

	"ledger-sync-service/internal/config"
)

// ER_BAD_DB_ERROR, returned when the DSN names a schema that does not exist.
const errUnknownDatabase = 1049

const (
	maxOpenConns    = 25
	maxIdleConns    = 25
	connMaxLifetime = 5 * time.Minute
	connectTimeout  = 10 * time.Second
)

// NewConnection opens the configured schema, creating it first when the
// server reports it missing.
func NewConnection(cfg *config.Config, logger logrus.FieldLogger) (*sql.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	dsn := cfg.GetDSN()
	db, err := open(ctx, dsn)
	if isUnknownDatabase(err) {
		log := logger.WithField("database", cfg.Database.Name)
		log.Warn("database does not exist, creating it")
		if err := createSchema(ctx, dsn); err != nil {
			return nil, err
		}
		log.Info("created database")
		db, err = open(ctx, dsn)
	}
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	logger.WithFields(logrus.Fields{
		"host":     cfg.Database.Host,
		"database": cfg.Database.Name,
	}).Info("connected to MySQL database")
	return db, nil
}

func open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error pinging database: %w", err)
	}
	return db, nil
}

func isUnknownDatabase(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == errUnknownDatabase
}

// createSchema connects without a default schema and creates the one dsn
// names.
func createSchema(ctx context.Context, dsn string) error {
	serverDSN, name, err := splitSchema(dsn)
	if err != nil {
		return err
	}
	server, err := open(ctx, serverDSN)
	if err != nil {
		return fmt.Errorf("error connecting to MySQL server: %w", err)
	}
	defer server.Close()

	stmt := fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s CHARACTER SET utf8mb4 COLLATE utf8mb4_unicode_ci", quoteIdent(name))
	if _, err := server.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("error creating database %s: %w", name, err)
	}
	return nil
}

// splitSchema returns dsn with its schema removed, and the schema name.
func splitSchema(dsn string) (string, string, error) {
	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", "", fmt.Errorf("error parsing DSN: %w", err)
	}
	name := parsed.DBName
	if name == "" {
		return "", "", errors.New("DSN names no database")
	}
	parsed.DBName = ""
	return parsed.FormatDSN(), name, nil
}

func quoteIdent(name string) string {
	out := make([]byte, 0, len(name)+2)
	out = append(out, '`')
	for i := 0; i < len(name); i++ {
		if name[i] == '`' {
			out = append(out, '`')
		}
		out = append(out, name[i])
	}
	return string(append(out, '`'))
}

// RunInTx runs fn inside a transaction bound to ctx. The transaction is
// rolled back when fn fails or ctx ends before commit.
func RunInTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
