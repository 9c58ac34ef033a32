package gormpersistence

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	"party-lobby/internal/repository"
)

func TestTranslateError(t *testing.T) {
	business := errors.New("only the host can do that")

	tests := []struct {
		name string
		in   error
		want error
	}{
		{"nil", nil, nil},
		{"record not found", fmt.Errorf("wrapped: %w", gorm.ErrRecordNotFound), repository.ErrNotFound},
		{"gorm duplicated key", gorm.ErrDuplicatedKey, repository.ErrDuplicateEntry},
		{"mysql duplicate", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}, repository.ErrDuplicateEntry},
		{"mysql deadlock", &mysql.MySQLError{Number: 1213}, repository.ErrTxConflict},
		{"mysql lock wait timeout", &mysql.MySQLError{Number: 1205}, repository.ErrTxConflict},
		{"postgres unique", &pgconn.PgError{Code: "23505"}, repository.ErrDuplicateEntry},
		{"postgres serialization", &pgconn.PgError{Code: "40001"}, repository.ErrTxConflict},
		{"postgres deadlock", &pgconn.PgError{Code: "40P01"}, repository.ErrTxConflict},
		{"duplicate message", errors.New("Error 1062: Duplicate entry 'x' for key 'PRIMARY'"), repository.ErrDuplicateEntry},
		{"conflict from tx body", repository.ErrTxConflict, repository.ErrTxConflict},
		{"business error", business, business},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := translateError(tt.in)
			if tt.want == nil {
				assert.NoError(t, got)
				return
			}
			assert.ErrorIs(t, got, tt.want)
		})
	}
}

func TestTranslateError_UnknownDriverErrorPassesThrough(t *testing.T) {
	in := &mysql.MySQLError{Number: 1146, Message: "Table doesn't exist"}
	assert.Same(t, in, translateError(in))
}
