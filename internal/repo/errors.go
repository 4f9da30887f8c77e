package repo

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Общие ошибки репозиториев.
var (
	// ErrNotFound — запись не найдена в БД.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists — запись уже существует (конфликт уникальности).
	ErrAlreadyExists = errors.New("already exists")

	// ErrAccess — ошибка чтения из хранилища.
	ErrAccess = errors.New("data access failed")

	// ErrUpdate — ошибка записи в хранилище.
	ErrUpdate = errors.New("data update failed")
)

// uniqueViolation — SQLSTATE нарушения уникальности в PostgreSQL.
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func accessError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrAccess, err)
}

func updateError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUpdate, err)
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
