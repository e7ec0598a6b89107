package schema

import (
	"strings"

	"github.com/qubird/crudo/models"
)

// ResolveKind maps a native Postgres type to exactly one ColumnKind.
// dataType and udtName come straight from information_schema.columns;
// enumValues is non-empty when the udt is an enum type. The mapping is
// total: anything unrecognized is a string, because the engine has to
// serve schemas it never designed.
func ResolveKind(dataType, udtName string, maxLength int, enumValues []string) models.ColumnKind {
	dt := strings.ToLower(dataType)
	udt := strings.ToLower(udtName)

	switch dt {
	case "boolean":
		return models.KindBoolean
	case "smallint", "integer", "bigint", "smallserial", "serial", "bigserial":
		return models.KindInteger
	case "real", "double precision", "numeric", "decimal":
		return models.KindNumber
	case "json", "jsonb":
		return models.KindJSON
	case "array":
		return models.KindArray
	case "date":
		return models.KindDate
	}

	// information_schema reports arrays as "ARRAY" with a "_"-prefixed udt
	if strings.HasPrefix(udt, "_") {
		return models.KindArray
	}

	switch udt {
	case "geometry", "geography", "raster":
		return models.KindGeometry
	}

	if len(enumValues) > 0 {
		return models.KindEnum
	}

	if strings.HasPrefix(dt, "timestamp") {
		return models.KindDatetime
	}

	switch dt {
	case "text":
		return models.KindText
	case "character varying", "character", "varchar", "char":
		if maxLength == 0 {
			// no declared cap, render as long text
			return models.KindText
		}
		return models.KindString
	}

	return models.KindString
}
