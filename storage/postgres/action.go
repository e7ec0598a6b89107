package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/qubird/crudo/models"
	"github.com/qubird/crudo/pkg/helper"
	"github.com/qubird/crudo/pkg/logger"
	"github.com/qubird/crudo/storage"
)

type actionsRepo struct {
	db  *pgxpool.Pool
	log logger.LoggerI
}

func NewActionsRepo(db *pgxpool.Pool, log logger.LoggerI) storage.ActionsRepoI {
	return &actionsRepo{
		db:  db,
		log: log,
	}
}

// Run invokes a registered action against the selected rows. The role
// gate comes before any database access; the callable runs inside one
// transaction with all-or-nothing semantics. If the callable fails, the
// transaction rolls back in full and the failure surfaces as an
// ActionError carrying the callable's message. No idempotency is
// provided: re-running with the same keys re-runs the callable.
func (r *actionsRepo) Run(ctx context.Context, m *models.ModelDescriptor, action *models.ActionDescriptor, pks []string, role string) (string, int, error) {
	if !action.VisibleTo(role) {
		return "", 0, &models.ForbiddenError{Message: "admin access required"}
	}
	if len(pks) == 0 {
		return "", 0, models.NewValidationError("no records selected")
	}

	decoded := make([][]any, 0, len(pks))
	for _, pk := range pks {
		values, err := m.DecodePK(pk)
		if err != nil {
			return "", 0, err
		}
		decoded = append(decoded, values)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return "", 0, helper.HandleDatabaseError(err, r.log, "begin action transaction")
	}
	defer tx.Rollback(ctx)

	records := []map[string]any{}
	for _, pkValues := range decoded {
		row, err := fetchRow(ctx, tx, m, pkValues)
		if err != nil {
			var notFound *models.NotFoundError
			if errors.As(err, &notFound) {
				continue
			}
			return "", 0, helper.HandleDatabaseError(err, r.log, "fetch action records")
		}
		records = append(records, row)
	}
	if len(records) == 0 {
		return "", 0, &models.NotFoundError{Message: "no matching records found"}
	}

	message, err := action.Fn(ctx, records, tx)
	if err != nil {
		r.log.Error("action callable failed",
			logger.String("table", m.TableName),
			logger.String("action", action.Name),
			logger.Error(err))
		return "", 0, &models.ActionError{Action: action.Name, Message: err.Error()}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", 0, helper.HandleDatabaseError(err, r.log, "commit action transaction")
	}

	r.refreshCount(ctx, m)

	if message == "" {
		message = "Action completed"
	}
	return message, len(records), nil
}

// refreshCount is best-effort after a committed action; the count is
// display-only and the next mutation recomputes it anyway.
func (r *actionsRepo) refreshCount(ctx context.Context, m *models.ModelDescriptor) {
	var total int64
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, quoteIdent(m.TableName))

	if err := r.db.QueryRow(ctx, query).Scan(&total); err != nil {
		r.log.Warn("row count refresh failed", logger.String("table", m.TableName), logger.Error(err))
		return
	}
	m.SetRowCount(total)
}
