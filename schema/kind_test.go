package schema

import (
	"testing"

	"github.com/qubird/crudo/models"
)

func TestResolveKind(t *testing.T) {
	tests := []struct {
		name      string
		dataType  string
		udtName   string
		maxLength int
		enums     []string
		want      models.ColumnKind
	}{
		{"boolean", "boolean", "bool", 0, nil, models.KindBoolean},
		{"smallint", "smallint", "int2", 0, nil, models.KindInteger},
		{"integer", "integer", "int4", 0, nil, models.KindInteger},
		{"bigint", "bigint", "int8", 0, nil, models.KindInteger},
		{"real", "real", "float4", 0, nil, models.KindNumber},
		{"double", "double precision", "float8", 0, nil, models.KindNumber},
		{"numeric", "numeric", "numeric", 0, nil, models.KindNumber},
		{"json", "json", "json", 0, nil, models.KindJSON},
		{"jsonb", "jsonb", "jsonb", 0, nil, models.KindJSON},
		{"int array", "ARRAY", "_int4", 0, nil, models.KindArray},
		{"text array", "ARRAY", "_text", 0, nil, models.KindArray},
		{"geometry", "USER-DEFINED", "geometry", 0, nil, models.KindGeometry},
		{"geography", "USER-DEFINED", "geography", 0, nil, models.KindGeometry},
		{"enum", "USER-DEFINED", "mood", 0, []string{"happy", "sad"}, models.KindEnum},
		{"timestamp", "timestamp without time zone", "timestamp", 0, nil, models.KindDatetime},
		{"timestamptz", "timestamp with time zone", "timestamptz", 0, nil, models.KindDatetime},
		{"date", "date", "date", 0, nil, models.KindDate},
		{"varchar capped", "character varying", "varchar", 120, nil, models.KindString},
		{"varchar uncapped", "character varying", "varchar", 0, nil, models.KindText},
		{"text", "text", "text", 0, nil, models.KindText},
		{"uuid", "uuid", "uuid", 0, nil, models.KindString},
		{"bytea", "bytea", "bytea", 0, nil, models.KindString},
		{"inet", "inet", "inet", 0, nil, models.KindString},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveKind(tt.dataType, tt.udtName, tt.maxLength, tt.enums)
			if got != tt.want {
				t.Errorf("ResolveKind(%q, %q) = %s, want %s", tt.dataType, tt.udtName, got, tt.want)
			}
		})
	}
}

func TestUnknownTypeFallsBackToString(t *testing.T) {
	got := ResolveKind("some_custom_type", "some_custom_type", 0, nil)
	if got != models.KindString {
		t.Errorf("expected fallback to string, got %s", got)
	}
}
