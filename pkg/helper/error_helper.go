package helper

import (
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"github.com/qubird/crudo/models"
	"github.com/qubird/crudo/pkg/logger"
)

// HandleDatabaseError translates storage-driver failures into the
// engine error taxonomy so no raw pgx error ever reaches a caller.
// Errors that are already engine errors pass through untouched.
func HandleDatabaseError(err error, log logger.LoggerI, message string) error {
	if err == nil {
		return nil
	}

	switch err.(type) {
	case *models.NotFoundError, *models.ValidationError, *models.ConflictError,
		*models.ForbiddenError, *models.ActionError,
		*models.InvalidSortError, *models.InvalidPageError:
		return err
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return &models.NotFoundError{Message: "record not found"}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		log.Error(message+": "+err.Error(),
			logger.String("code", pgErr.Code),
			logger.String("constraint", pgErr.ConstraintName))

		switch pgErr.Code {
		case "23505":
			// unique violation
			return &models.ConflictError{Message: fmt.Sprintf("duplicate value: %s", pgErr.Detail)}
		case "23503":
			// foreign key violation, on insert or on delete of referenced rows
			return &models.ConflictError{Message: fmt.Sprintf("foreign key violation: %s", pgErr.Message)}
		case "23502":
			// not null violation
			return models.NewValidationError(fmt.Sprintf("not null violation on column %s", pgErr.ColumnName))
		case "23514":
			// check constraint violation
			return models.NewValidationError(fmt.Sprintf("check constraint violation: %s", pgErr.Message))
		case "22001":
			// value too long
			return models.NewValidationError(pgErr.Message)
		case "22P02", "22003", "22007":
			// bad literal, numeric range, bad datetime
			return models.NewValidationError(pgErr.Message)
		case "42P01":
			return &models.NotFoundError{Message: "undefined table"}
		case "42703":
			return models.NewValidationError(fmt.Sprintf("undefined column: %s", pgErr.Message))
		}

		return errors.Wrap(err, message)
	}

	return errors.Wrap(err, message)
}
