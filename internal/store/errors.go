package store

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/JonMunkholm/geoatlas/internal/core"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// PostgreSQL SQLSTATE codes for constraint violations.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

// translate maps a driver error from a write on entity to the core error
// taxonomy. Unclassified errors become infrastructure errors.
func translate(op, entity, key string, err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch strings.TrimSpace(pgErr.Code) {
		case pgUniqueViolation:
			return &core.ConflictError{Entity: entity, Key: key}
		case pgForeignKeyViolation:
			return &core.NotFoundError{Entity: "province", Ref: key}
		case pgCheckViolation:
			return checkViolation(pgErr.ConstraintName)
		}
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return &core.ConflictError{Entity: entity, Key: key}
		case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return &core.NotFoundError{Entity: "province", Ref: key}
		case sqlite3.SQLITE_CONSTRAINT_CHECK:
			return checkViolation(liteErr.Error())
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "duplicate key"), strings.Contains(msg, "unique constraint"):
		return &core.ConflictError{Entity: entity, Key: key}
	case strings.Contains(msg, "foreign key"):
		return &core.NotFoundError{Entity: "province", Ref: key}
	}

	return &core.InfrastructureError{Op: op, Err: err}
}

func checkViolation(constraint string) error {
	if strings.Contains(constraint, "self") {
		return &core.ValidationError{Message: "self-connection"}
	}
	return &core.ValidationError{Message: "value out of range: " + constraint}
}

// wrap marks a read error as an infrastructure failure.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &core.InfrastructureError{Op: op, Err: err}
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows)
}
