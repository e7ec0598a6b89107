package schema

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/qubird/crudo/models"
	"github.com/qubird/crudo/pkg/logger"
)

// Introspector reflects a live Postgres schema into ModelDescriptors.
// It runs once at startup; tables created afterwards are not picked up
// without a restart.
type Introspector struct {
	db       *pgxpool.Pool
	pgSchema string
	include  map[string]bool
	exclude  map[string]bool
	log      logger.LoggerI
}

func NewIntrospector(db *pgxpool.Pool, pgSchema string, include, exclude []string, log logger.LoggerI) *Introspector {
	ins := &Introspector{
		db:       db,
		pgSchema: pgSchema,
		exclude:  make(map[string]bool, len(exclude)),
		log:      log,
	}
	if len(include) > 0 {
		ins.include = make(map[string]bool, len(include))
		for _, t := range include {
			ins.include[t] = true
		}
	}
	for _, t := range exclude {
		ins.exclude[t] = true
	}
	return ins
}

type rawTable struct {
	name     string
	rowCount int64
	columns  []rawColumn
	pk       []string
}

type rawColumn struct {
	name       string
	dataType   string
	udtName    string
	nullable   bool
	hasDefault bool
	autoValue  bool // nextval default or identity column
	maxLength  int
	comment    string
	fkTarget   string
}

// Introspect builds the registry. Any failure here is a SchemaError and
// aborts startup; there is no partial-schema mode.
func (ins *Introspector) Introspect(ctx context.Context) (*Registry, error) {
	tables, err := ins.discoverTables(ctx)
	if err != nil {
		return nil, &models.SchemaError{Message: "discovering tables", Err: err}
	}

	tableMap := make(map[string]*rawTable, len(tables))
	names := make([]string, 0, len(tables))
	for _, t := range tables {
		tableMap[t.name] = t
		names = append(names, t.name)
	}

	if err := ins.discoverColumns(ctx, tableMap, names); err != nil {
		return nil, &models.SchemaError{Message: "discovering columns", Err: err}
	}
	if err := ins.discoverPrimaryKeys(ctx, tableMap, names); err != nil {
		return nil, &models.SchemaError{Message: "discovering primary keys", Err: err}
	}
	if err := ins.discoverForeignKeys(ctx, tableMap, names); err != nil {
		return nil, &models.SchemaError{Message: "discovering foreign keys", Err: err}
	}
	if err := ins.discoverComments(ctx, tableMap); err != nil {
		return nil, &models.SchemaError{Message: "discovering comments", Err: err}
	}

	enums, err := ins.discoverEnums(ctx)
	if err != nil {
		return nil, &models.SchemaError{Message: "discovering enum types", Err: err}
	}

	descriptors := []*models.ModelDescriptor{}
	for _, t := range tables {
		if len(t.pk) == 0 {
			ins.log.Warn("skipping table without primary key", logger.String("table", t.name))
			continue
		}
		descriptors = append(descriptors, buildDescriptor(t, enums))
	}

	return NewRegistry(descriptors), nil
}

func (ins *Introspector) exposed(table string) bool {
	if ins.exclude[table] {
		return false
	}
	if ins.include != nil {
		return ins.include[table]
	}
	return true
}

// discoverTables lists user tables with their planner row estimates,
// which seed the cached counts before the first mutation.
func (ins *Introspector) discoverTables(ctx context.Context) ([]*rawTable, error) {
	query := `
		SELECT
			c.relname AS table_name,
			c.reltuples::bigint AS row_estimate
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = $1
		  AND c.relkind = 'r'
		ORDER BY c.relname`

	rows, err := ins.db.Query(ctx, query, ins.pgSchema)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []*rawTable
	for rows.Next() {
		t := &rawTable{}
		if err := rows.Scan(&t.name, &t.rowCount); err != nil {
			return nil, err
		}
		if !ins.exposed(t.name) {
			continue
		}
		// reltuples is -1 for never-analyzed tables
		if t.rowCount < 0 {
			t.rowCount = 0
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

func (ins *Introspector) discoverColumns(ctx context.Context, tableMap map[string]*rawTable, names []string) error {
	query := `
		SELECT
			table_name,
			column_name,
			data_type,
			udt_name,
			is_nullable,
			column_default,
			is_identity,
			character_maximum_length
		FROM information_schema.columns
		WHERE table_schema = $1
		  AND table_name = ANY($2)
		ORDER BY table_name, ordinal_position`

	rows, err := ins.db.Query(ctx, query, ins.pgSchema, names)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			tableName, colName, dataType, udtName string
			nullable, isIdentity                  string
			defaultVal                            *string
			maxLen                                *int
		)
		if err := rows.Scan(&tableName, &colName, &dataType, &udtName, &nullable, &defaultVal, &isIdentity, &maxLen); err != nil {
			return err
		}

		t, ok := tableMap[tableName]
		if !ok {
			continue
		}

		col := rawColumn{
			name:       colName,
			dataType:   dataType,
			udtName:    udtName,
			nullable:   nullable == "YES",
			hasDefault: defaultVal != nil,
		}
		if maxLen != nil {
			col.maxLength = *maxLen
		}
		if isIdentity == "YES" || (defaultVal != nil && strings.HasPrefix(*defaultVal, "nextval(")) {
			col.autoValue = true
		}
		t.columns = append(t.columns, col)
	}
	return rows.Err()
}

func (ins *Introspector) discoverPrimaryKeys(ctx context.Context, tableMap map[string]*rawTable, names []string) error {
	query := `
		SELECT
			tc.table_name,
			kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name
		  AND tc.table_schema = kcu.table_schema
		WHERE tc.constraint_type = 'PRIMARY KEY'
		  AND tc.table_schema = $1
		  AND tc.table_name = ANY($2)
		ORDER BY tc.table_name, kcu.ordinal_position`

	rows, err := ins.db.Query(ctx, query, ins.pgSchema, names)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var tableName, colName string
		if err := rows.Scan(&tableName, &colName); err != nil {
			return err
		}
		if t, ok := tableMap[tableName]; ok {
			t.pk = append(t.pk, colName)
		}
	}
	return rows.Err()
}

func (ins *Introspector) discoverForeignKeys(ctx context.Context, tableMap map[string]*rawTable, names []string) error {
	query := `
		SELECT
			tc.table_name,
			kcu.column_name,
			ccu.table_name AS referenced_table,
			ccu.column_name AS referenced_column
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name
		  AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
		  ON tc.constraint_name = ccu.constraint_name
		  AND tc.table_schema = ccu.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
		  AND tc.table_schema = $1
		  AND tc.table_name = ANY($2)
		ORDER BY tc.table_name, kcu.ordinal_position`

	rows, err := ins.db.Query(ctx, query, ins.pgSchema, names)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var tableName, colName, refTable, refColumn string
		if err := rows.Scan(&tableName, &colName, &refTable, &refColumn); err != nil {
			return err
		}
		t, ok := tableMap[tableName]
		if !ok {
			continue
		}
		for i := range t.columns {
			if t.columns[i].name == colName {
				t.columns[i].fkTarget = refTable + "." + refColumn
				break
			}
		}
	}
	return rows.Err()
}

func (ins *Introspector) discoverComments(ctx context.Context, tableMap map[string]*rawTable) error {
	query := `
		SELECT c.relname, a.attname, d.description
		FROM pg_description d
		JOIN pg_class c ON c.oid = d.objoid
		JOIN pg_attribute a ON a.attrelid = c.oid AND a.attnum = d.objsubid
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = $1 AND d.objsubid > 0`

	rows, err := ins.db.Query(ctx, query, ins.pgSchema)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var tableName, colName, comment string
		if err := rows.Scan(&tableName, &colName, &comment); err != nil {
			return err
		}
		t, ok := tableMap[tableName]
		if !ok {
			continue
		}
		for i := range t.columns {
			if t.columns[i].name == colName {
				t.columns[i].comment = comment
				break
			}
		}
	}
	return rows.Err()
}

// discoverEnums returns the allowed literals of every enum type in the
// database, keyed by udt name in declaration order.
func (ins *Introspector) discoverEnums(ctx context.Context) (map[string][]string, error) {
	query := `
		SELECT t.typname, e.enumlabel
		FROM pg_type t
		JOIN pg_enum e ON e.enumtypid = t.oid
		ORDER BY t.typname, e.enumsortorder`

	rows, err := ins.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	enums := make(map[string][]string)
	for rows.Next() {
		var typName, label string
		if err := rows.Scan(&typName, &label); err != nil {
			return nil, err
		}
		enums[typName] = append(enums[typName], label)
	}
	return enums, rows.Err()
}

func buildDescriptor(t *rawTable, enums map[string][]string) *models.ModelDescriptor {
	m := &models.ModelDescriptor{
		TableName:   t.name,
		DisplayName: displayName(t.name),
		PKColumns:   t.pk,
		Columns:     make([]models.ColumnDescriptor, 0, len(t.columns)),
	}

	pkSet := make(map[string]bool, len(t.pk))
	for _, name := range t.pk {
		pkSet[name] = true
	}

	for _, raw := range t.columns {
		enumValues := enums[raw.udtName]
		col := models.ColumnDescriptor{
			Name:             raw.name,
			Kind:             ResolveKind(raw.dataType, raw.udtName, raw.maxLength, enumValues),
			NativeType:       raw.dataType,
			Nullable:         raw.nullable,
			HasDefault:       raw.hasDefault,
			PrimaryKey:       pkSet[raw.name],
			IsForeignKey:     raw.fkTarget != "",
			ForeignKeyTarget: raw.fkTarget,
			MaxLength:        raw.maxLength,
			Comment:          raw.comment,
		}
		if col.Kind == models.KindEnum {
			col.EnumValues = enumValues
		}
		// server-assigned identity and serial primary keys
		col.IsAutoPK = col.PrimaryKey && raw.autoValue
		m.Columns = append(m.Columns, col)
	}

	m.SetRowCount(t.rowCount)
	return m
}

// displayName turns snake_case table names into a model-style label,
// e.g. "user_accounts" -> "UserAccounts".
func displayName(table string) string {
	parts := strings.Split(table, "_")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, "")
}
