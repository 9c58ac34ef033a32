package gormpersistence

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"party-lobby/internal/repository"
)

// MySQL / PostgreSQL 错误码
const (
	mysqlDuplicateEntry  = 1062
	mysqlLockWaitTimeout = 1205
	mysqlDeadlock        = 1213

	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// translateError 把驱动层错误映射为仓库层错误，其他错误原样返回 (包括事务体返回的业务错误)。
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return repository.ErrNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return repository.ErrDuplicateEntry
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case mysqlDuplicateEntry:
			return repository.ErrDuplicateEntry
		case mysqlDeadlock, mysqlLockWaitTimeout:
			return repository.ErrTxConflict
		}
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return repository.ErrDuplicateEntry
		case pgSerializationFailure, pgDeadlockDetected:
			return repository.ErrTxConflict
		}
		return err
	}

	if isDuplicateEntryError(err) {
		return repository.ErrDuplicateEntry
	}
	return err
}

// isDuplicateEntryError 驱动没有返回结构化错误时 (例如被包装过) 的后备检查。
func isDuplicateEntryError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || // SQLite
		strings.Contains(msg, "Duplicate entry") || // MySQL
		strings.Contains(msg, "duplicate key value violates unique constraint") // PostgreSQL
}
