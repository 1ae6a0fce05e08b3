package implementation

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	ErrRowNotFound      = errors.New("row not found")
	ErrPermissionDenied = errors.New("row-level policy denied the write")
	ErrUniqueViolation  = errors.New("unique constraint violated")
)

// classify turns driver errors the services care about into sentinels. Other
// errors pass through untouched.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return errors.Join(ErrUniqueViolation, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "42501":
			return errors.Join(ErrPermissionDenied, err)
		case "23505":
			return errors.Join(ErrUniqueViolation, err)
		}
	}
	return err
}
