package coerce

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/qubird/crudo/models"
	"github.com/qubird/crudo/pkg/logger"
	"github.com/spf13/cast"
)

var datetimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

type Coercer struct {
	log logger.LoggerI
}

func NewCoercer(log logger.LoggerI) *Coercer {
	return &Coercer{log: log}
}

// Payload converts an untyped request body into native values keyed by
// column name. Unknown payload fields are dropped, never rejected;
// over-posted read-only metadata is common. On create, auto-generated
// primary keys are excluded entirely; on update, primary-key columns
// are accepted but never applied. Any field error fails the whole call
// with a ValidationError and no partial coercion.
func (c *Coercer) Payload(cols []models.ColumnDescriptor, payload map[string]any, isUpdate bool) (map[string]any, error) {
	coerced := make(map[string]any)
	fieldErrs := make(map[string]string)

	for i := range cols {
		col := &cols[i]

		if col.IsAutoPK && !isUpdate {
			continue
		}
		if col.PrimaryKey && isUpdate {
			continue
		}

		raw, present := payload[col.Name]

		if !present {
			if !isUpdate && col.Required() {
				fieldErrs[col.Name] = "Required"
			}
			continue
		}

		if raw == nil {
			if !isUpdate && col.Required() {
				fieldErrs[col.Name] = "Required"
				continue
			}
			coerced[col.Name] = nil
			continue
		}

		if s, isStr := raw.(string); isStr && s == "" {
			switch {
			case !isUpdate && col.Required():
				fieldErrs[col.Name] = "Required"
			case col.Nullable:
				coerced[col.Name] = nil
			case col.HasDefault && !isUpdate:
				// defer to the storage default
			default:
				c.coerceInto(coerced, fieldErrs, col, raw)
			}
			continue
		}

		c.coerceInto(coerced, fieldErrs, col, raw)
	}

	if len(fieldErrs) > 0 {
		return nil, &models.ValidationError{Fields: fieldErrs}
	}
	return coerced, nil
}

func (c *Coercer) coerceInto(coerced map[string]any, fieldErrs map[string]string, col *models.ColumnDescriptor, raw any) {
	val, msg := c.value(col, raw)
	if msg != "" {
		fieldErrs[col.Name] = msg
		return
	}
	coerced[col.Name] = val
}

func (c *Coercer) value(col *models.ColumnDescriptor, raw any) (any, string) {
	switch col.Kind {
	case models.KindInteger:
		return coerceInteger(raw)
	case models.KindNumber:
		return coerceNumber(raw)
	case models.KindBoolean:
		v, err := cast.ToBoolE(raw)
		if err != nil {
			return nil, "Invalid boolean"
		}
		return v, ""
	case models.KindEnum:
		s := cast.ToString(raw)
		if len(col.EnumValues) > 0 && !contains(col.EnumValues, s) {
			return nil, "Invalid choice"
		}
		return s, ""
	case models.KindDate:
		return coerceDate(raw)
	case models.KindDatetime:
		return coerceDatetime(raw)
	case models.KindJSON:
		return c.coerceStructured(col, raw, new(any))
	case models.KindArray:
		return c.coerceStructured(col, raw, new([]any))
	case models.KindGeometry:
		// write-only as WKT; the query layer wraps it in ST_GeomFromText
		return cast.ToString(raw), ""
	default: // string, text
		return cast.ToString(raw), ""
	}
}

func coerceInteger(raw any) (any, string) {
	switch v := raw.(type) {
	case float64:
		if v != math.Trunc(v) {
			return nil, "Invalid integer"
		}
		return int64(v), ""
	case float32:
		return coerceInteger(float64(v))
	case int, int8, int16, int32, int64, uint, uint32, uint64:
		return cast.ToInt64(v), ""
	case json.Number:
		return coerceInteger(string(v))
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil, "Invalid integer"
		}
		return n, ""
	default:
		return nil, "Invalid integer"
	}
}

func coerceNumber(raw any) (any, string) {
	switch v := raw.(type) {
	case float64:
		return v, ""
	case float32:
		return float64(v), ""
	case int, int8, int16, int32, int64, uint, uint32, uint64:
		return cast.ToFloat64(v), ""
	case json.Number:
		return coerceNumber(string(v))
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, "Invalid number"
		}
		return f, ""
	default:
		return nil, "Invalid number"
	}
}

func coerceDate(raw any) (any, string) {
	s := cast.ToString(raw)
	// the whole input must parse under one layout; only then is it
	// truncated to date precision
	for _, layout := range datetimeLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			if len(s) > 10 {
				return s[:10], ""
			}
			return s, ""
		}
	}
	return nil, "Invalid date"
}

func coerceDatetime(raw any) (any, string) {
	s := cast.ToString(raw)
	for _, layout := range datetimeLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return s, ""
		}
	}
	return nil, "Invalid datetime"
}

// coerceStructured parses string input as JSON. A parse failure passes
// the raw string through uncoerced: clients round-trip opaque values
// and rejecting them would break observed behavior. Logged at warn.
func (c *Coercer) coerceStructured(col *models.ColumnDescriptor, raw any, target any) (any, string) {
	s, isStr := raw.(string)
	if !isStr {
		return raw, ""
	}

	switch t := target.(type) {
	case *[]any:
		if err := json.Unmarshal([]byte(s), t); err == nil {
			return *t, ""
		}
	default:
		var v any
		if err := json.Unmarshal([]byte(s), &v); err == nil {
			return v, ""
		}
	}

	c.log.Warn("unparsable structured value passed through",
		logger.String("column", col.Name), logger.String("kind", string(col.Kind)))
	return s, ""
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
