package postgres

import (
	"context"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/qubird/crudo/models"
	"github.com/qubird/crudo/pkg/helper"
	"github.com/qubird/crudo/pkg/logger"
	"github.com/qubird/crudo/storage"
)

type itemsRepo struct {
	db  *pgxpool.Pool
	log logger.LoggerI
}

func NewItemsRepo(db *pgxpool.Pool, log logger.LoggerI) storage.ItemsRepoI {
	return &itemsRepo{
		db:  db,
		log: log,
	}
}

// rowQuerier is satisfied by both *pgxpool.Pool and pgx.Tx, so point
// lookups can run standalone or inside a write transaction.
type rowQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *itemsRepo) List(ctx context.Context, m *models.ModelDescriptor, params models.ListParams) (*models.PaginatedResult, error) {
	query, args, countQuery, countArgs, err := buildListQuery(m, params)
	if err != nil {
		return nil, err
	}

	perPage := params.PerPage
	if perPage == 0 {
		perPage = defaultPerPage
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, helper.HandleDatabaseError(err, r.log, "begin list transaction")
	}
	defer tx.Rollback(ctx)

	var total int64
	if err := tx.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, helper.HandleDatabaseError(err, r.log, "count "+m.TableName)
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, helper.HandleDatabaseError(err, r.log, "list "+m.TableName)
	}

	items, err := rowsToMaps(rows)
	if err != nil {
		return nil, helper.HandleDatabaseError(err, r.log, "scan "+m.TableName)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, helper.HandleDatabaseError(err, r.log, "commit list transaction")
	}

	pages := 0
	if total > 0 {
		pages = int(math.Ceil(float64(total) / float64(perPage)))
	}

	return &models.PaginatedResult{
		Items:   items,
		Total:   total,
		Page:    params.Page,
		PerPage: perPage,
		Pages:   pages,
	}, nil
}

func (r *itemsRepo) Get(ctx context.Context, m *models.ModelDescriptor, pk string) (map[string]any, error) {
	pkValues, err := m.DecodePK(pk)
	if err != nil {
		return nil, err
	}

	row, err := fetchRow(ctx, r.db, m, pkValues)
	if err != nil {
		return nil, helper.HandleDatabaseError(err, r.log, "get "+m.TableName)
	}
	return row, nil
}

func (r *itemsRepo) Create(ctx context.Context, m *models.ModelDescriptor, payload map[string]any) (map[string]any, error) {
	query, args, err := buildInsertQuery(m, payload)
	if err != nil {
		return nil, helper.HandleDatabaseError(err, r.log, "build insert "+m.TableName)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, helper.HandleDatabaseError(err, r.log, "begin create transaction")
	}
	defer tx.Rollback(ctx)

	pkValues := make([]any, len(m.PKColumns))
	dest := make([]any, len(m.PKColumns))
	for i := range pkValues {
		dest[i] = &pkValues[i]
	}

	if err := tx.QueryRow(ctx, query, args...).Scan(dest...); err != nil {
		return nil, helper.HandleDatabaseError(err, r.log, "insert into "+m.TableName)
	}

	// re-read inside the transaction so formatted values (geometry WKT,
	// applied defaults) come back exactly as a subsequent GET would
	row, err := fetchRow(ctx, tx, m, pkValues)
	if err != nil {
		return nil, helper.HandleDatabaseError(err, r.log, "read back "+m.TableName)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, helper.HandleDatabaseError(err, r.log, "commit create transaction")
	}

	if err := r.RefreshCount(ctx, m); err != nil {
		r.log.Warn("row count refresh failed", logger.String("table", m.TableName), logger.Error(err))
	}

	return row, nil
}

func (r *itemsRepo) Update(ctx context.Context, m *models.ModelDescriptor, pk string, payload map[string]any) (map[string]any, error) {
	pkValues, err := m.DecodePK(pk)
	if err != nil {
		return nil, err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, helper.HandleDatabaseError(err, r.log, "begin update transaction")
	}
	defer tx.Rollback(ctx)

	if len(payload) > 0 {
		query, args, err := buildUpdateQuery(m, pkValues, payload)
		if err != nil {
			return nil, helper.HandleDatabaseError(err, r.log, "build update "+m.TableName)
		}

		tag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return nil, helper.HandleDatabaseError(err, r.log, "update "+m.TableName)
		}
		if tag.RowsAffected() == 0 {
			return nil, &models.NotFoundError{Message: "record not found"}
		}
	}

	row, err := fetchRow(ctx, tx, m, pkValues)
	if err != nil {
		return nil, helper.HandleDatabaseError(err, r.log, "read back "+m.TableName)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, helper.HandleDatabaseError(err, r.log, "commit update transaction")
	}

	if err := r.RefreshCount(ctx, m); err != nil {
		r.log.Warn("row count refresh failed", logger.String("table", m.TableName), logger.Error(err))
	}

	return row, nil
}

func (r *itemsRepo) Delete(ctx context.Context, m *models.ModelDescriptor, pk string) error {
	pkValues, err := m.DecodePK(pk)
	if err != nil {
		return err
	}

	query, args, err := buildDeleteQuery(m, pkValues)
	if err != nil {
		return helper.HandleDatabaseError(err, r.log, "build delete "+m.TableName)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return helper.HandleDatabaseError(err, r.log, "begin delete transaction")
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return helper.HandleDatabaseError(err, r.log, "delete from "+m.TableName)
	}
	if tag.RowsAffected() == 0 {
		return &models.NotFoundError{Message: "record not found"}
	}

	if err := tx.Commit(ctx); err != nil {
		return helper.HandleDatabaseError(err, r.log, "commit delete transaction")
	}

	if err := r.RefreshCount(ctx, m); err != nil {
		r.log.Warn("row count refresh failed", logger.String("table", m.TableName), logger.Error(err))
	}

	return nil
}

// RefreshCount recomputes the cached row count with an exact COUNT(*).
func (r *itemsRepo) RefreshCount(ctx context.Context, m *models.ModelDescriptor) error {
	var total int64
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, quoteIdent(m.TableName))

	if err := r.db.QueryRow(ctx, query).Scan(&total); err != nil {
		return helper.HandleDatabaseError(err, r.log, "count "+m.TableName)
	}

	m.SetRowCount(total)
	return nil
}

// fetchRow loads one row by primary key as a plain field mapping.
func fetchRow(ctx context.Context, q rowQuerier, m *models.ModelDescriptor, pkValues []any) (map[string]any, error) {
	query, args, err := buildGetQuery(m, pkValues)
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	items, err := rowsToMaps(rows)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, &models.NotFoundError{Message: "record not found"}
	}
	return items[0], nil
}

func rowsToMaps(rows pgx.Rows) ([]map[string]any, error) {
	defer rows.Close()

	items := []map[string]any{}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}

		row := make(map[string]any, len(values))
		for i, fd := range rows.FieldDescriptions() {
			row[fd.Name] = normalizeValue(values[i])
		}
		items = append(items, row)
	}

	return items, rows.Err()
}

// normalizeValue converts driver types that don't survive JSON
// marshalling into plain values.
func normalizeValue(v any) any {
	switch t := v.(type) {
	case [16]byte: // uuid
		return fmt.Sprintf("%x-%x-%x-%x-%x", t[0:4], t[4:6], t[6:8], t[8:10], t[10:16])
	default:
		return v
	}
}
