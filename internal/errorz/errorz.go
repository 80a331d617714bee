package errorz

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrConstraintViolated = errors.New("constraint violated")
	// ErrMissingField is wrapped in a Keyed error when a required input is empty.
	ErrMissingField       = errors.New("missing required field")
)

// MapDBErr maps database errors to appropriate errorz errors.
// If err is nil, MapDBErr returns nil.
func MapDBErr(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	var sErr sqlite3.Error
	if errors.As(err, &sErr) && sErr.Code == sqlite3.ErrConstraint {
		// keep the sqlite message around, it names the violated column.
		return fmt.Errorf("%w: %s", ErrConstraintViolated, sErr.Error())
	}

	return err
}
