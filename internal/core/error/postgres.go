package errx

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/lib/pq"
)

// WrapPostgres maps database/sql and lib/pq errors to AppError.
func WrapPostgres(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return &AppError{Kind: ErrStore, Err: err, Status: http.StatusNotFound, Message: PostgresErrorMessage}
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Class() == "23" {
		// integrity constraint violation
		return &AppError{Kind: ErrStore, Err: err, Status: http.StatusConflict, Message: PostgresErrorMessage}
	}

	return &AppError{Kind: ErrStore, Err: err, Status: http.StatusBadGateway, Message: PostgresErrorMessage}
}
