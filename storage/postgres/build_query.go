package postgres

import (
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/qubird/crudo/models"
)

var sb = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

var allowedPerPage = map[int]bool{10: true, 25: true, 50: true, 100: true}

const defaultPerPage = 25

func quoteIdent(name string) string {
	return `"` + name + `"`
}

// selectExprs returns the projection for a model. Geometry columns are
// rendered as Well-Known-Text, never raw binary.
func selectExprs(m *models.ModelDescriptor) []string {
	exprs := make([]string, len(m.Columns))
	for i := range m.Columns {
		col := &m.Columns[i]
		if col.Kind == models.KindGeometry {
			exprs[i] = fmt.Sprintf(`ST_AsText(%s) AS %s`, quoteIdent(col.Name), quoteIdent(col.Name))
		} else {
			exprs[i] = quoteIdent(col.Name)
		}
	}
	return exprs
}

// likeEscaper neutralizes LIKE wildcards in user search terms, so
// "100%" matches the literal string and not every row.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// searchPredicate builds the case-insensitive substring match OR'd over
// every string/text/enum column. Returns nil when nothing is searchable.
func searchPredicate(m *models.ModelDescriptor, search string) squirrel.Sqlizer {
	if search == "" {
		return nil
	}

	pattern := "%" + likeEscaper.Replace(search) + "%"
	or := squirrel.Or{}
	for i := range m.Columns {
		col := &m.Columns[i]
		if !col.Searchable() {
			continue
		}
		expr := quoteIdent(col.Name)
		if col.Kind == models.KindEnum {
			expr += "::TEXT"
		}
		or = append(or, squirrel.Expr(expr+` ILIKE ? ESCAPE '\'`, pattern))
	}

	if len(or) == 0 {
		return nil
	}
	return or
}

// orderClauses validates sort_by/sort_dir and always appends the
// primary-key columns as a deterministic tie-break, so repeated values
// never shuffle rows between pages.
func orderClauses(m *models.ModelDescriptor, sortBy, sortDir string) ([]string, error) {
	clauses := []string{}

	if sortBy != "" {
		if _, ok := m.Column(sortBy); !ok {
			return nil, &models.InvalidSortError{Column: sortBy}
		}
		dir := " ASC"
		if sortDir == "desc" {
			dir = " DESC"
		}
		clauses = append(clauses, quoteIdent(sortBy)+dir)
	}

	for _, pk := range m.PKColumns {
		if pk == sortBy {
			continue
		}
		clauses = append(clauses, quoteIdent(pk)+" ASC")
	}

	return clauses, nil
}

// pkPredicate matches one row by its decoded primary-key values,
// positionally against PKColumns.
func pkPredicate(m *models.ModelDescriptor, pkValues []any) squirrel.Sqlizer {
	and := squirrel.And{}
	for i, name := range m.PKColumns {
		and = append(and, squirrel.Eq{quoteIdent(name): pkValues[i]})
	}
	return and
}

// buildListQuery produces the item page query and the independent count
// query over the same predicate.
func buildListQuery(m *models.ModelDescriptor, params models.ListParams) (query string, args []any, countQuery string, countArgs []any, err error) {
	if params.Page < 1 {
		return "", nil, "", nil, &models.InvalidPageError{Message: "page must be >= 1"}
	}
	perPage := params.PerPage
	if perPage == 0 {
		perPage = defaultPerPage
	}
	if !allowedPerPage[perPage] {
		return "", nil, "", nil, &models.InvalidPageError{Message: "per_page must be one of 10, 25, 50, 100"}
	}

	base := sb.Select(selectExprs(m)...).From(quoteIdent(m.TableName))
	count := sb.Select("COUNT(*)").From(quoteIdent(m.TableName))

	if pred := searchPredicate(m, params.Search); pred != nil {
		base = base.Where(pred)
		count = count.Where(pred)
	}

	order, err := orderClauses(m, params.SortBy, params.SortDir)
	if err != nil {
		return "", nil, "", nil, err
	}

	base = base.OrderBy(order...).
		Limit(uint64(perPage)).
		Offset(uint64((params.Page - 1) * perPage))

	query, args, err = base.ToSql()
	if err != nil {
		return "", nil, "", nil, err
	}
	countQuery, countArgs, err = count.ToSql()
	if err != nil {
		return "", nil, "", nil, err
	}
	return query, args, countQuery, countArgs, nil
}

func buildGetQuery(m *models.ModelDescriptor, pkValues []any) (string, []any, error) {
	return sb.Select(selectExprs(m)...).
		From(quoteIdent(m.TableName)).
		Where(pkPredicate(m, pkValues)).
		ToSql()
}

// buildInsertQuery inserts the coerced payload in column order,
// returning the primary-key values the server assigned. Geometry input
// is WKT and goes through ST_GeomFromText.
func buildInsertQuery(m *models.ModelDescriptor, payload map[string]any) (string, []any, error) {
	cols := []string{}
	vals := []any{}

	for i := range m.Columns {
		col := &m.Columns[i]
		v, ok := payload[col.Name]
		if !ok {
			continue
		}
		cols = append(cols, quoteIdent(col.Name))
		vals = append(vals, writeValue(col, v))
	}

	returning := "RETURNING " + joinQuoted(m.PKColumns)

	if len(cols) == 0 {
		// every column deferred to its default
		return fmt.Sprintf(`INSERT INTO %s DEFAULT VALUES %s`, quoteIdent(m.TableName), returning), nil, nil
	}

	return sb.Insert(quoteIdent(m.TableName)).
		Columns(cols...).
		Values(vals...).
		Suffix(returning).
		ToSql()
}

func buildUpdateQuery(m *models.ModelDescriptor, pkValues []any, payload map[string]any) (string, []any, error) {
	ub := sb.Update(quoteIdent(m.TableName))

	for i := range m.Columns {
		col := &m.Columns[i]
		v, ok := payload[col.Name]
		if !ok {
			continue
		}
		ub = ub.Set(quoteIdent(col.Name), writeValue(col, v))
	}

	return ub.Where(pkPredicate(m, pkValues)).ToSql()
}

func buildDeleteQuery(m *models.ModelDescriptor, pkValues []any) (string, []any, error) {
	return sb.Delete(quoteIdent(m.TableName)).
		Where(pkPredicate(m, pkValues)).
		ToSql()
}

func writeValue(col *models.ColumnDescriptor, v any) any {
	if v != nil && col.Kind == models.KindGeometry {
		return squirrel.Expr("ST_GeomFromText(?)", v)
	}
	return v
}

func joinQuoted(names []string) string {
	out := ""
	for i, n := range names {
		if i > 0 {
			out += ", "
		}
		out += quoteIdent(n)
	}
	return out
}
