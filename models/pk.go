package models

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cast"
)

// PKDelimiter joins the ordered primary-key column values into the
// external row identifier, e.g. "7--foo" for (tenant_id=7, slug="foo").
const PKDelimiter = "--"

// escapePKPart makes the delimiter unambiguous inside composite keys:
// "%" becomes "%25" and every "-" becomes "%2D", so encoded components
// never contain a dash. Escaping only the "--" sequence is not enough:
// a component ending in a single "-" would bleed into the delimiter
// ("a-" + "b" and "a" + "-b" would both encode as "a---b"). Values
// without "-" or "%" encode as themselves.
func escapePKPart(s string) string {
	s = strings.ReplaceAll(s, "%", "%25")
	return strings.ReplaceAll(s, "-", "%2D")
}

func unescapePKPart(s string) string {
	s = strings.ReplaceAll(s, "%2D", "-")
	return strings.ReplaceAll(s, "%25", "%")
}

// EncodePKParts encodes ordered primary-key values into the external
// identifier. Single-column keys pass through untouched; they are never
// split on decode, so no escaping is needed.
func EncodePKParts(parts []string) string {
	if len(parts) == 1 {
		return parts[0]
	}

	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = escapePKPart(p)
	}
	return strings.Join(escaped, PKDelimiter)
}

// DecodePKParts splits an external identifier into n ordered components.
func DecodePKParts(raw string, n int) ([]string, error) {
	if n == 1 {
		return []string{raw}, nil
	}

	parts := strings.Split(raw, PKDelimiter)
	if len(parts) != n {
		return nil, NewValidationError(fmt.Sprintf("expected %d primary key value(s), got %d", n, len(parts)))
	}

	for i, p := range parts {
		parts[i] = unescapePKPart(p)
	}
	return parts, nil
}

// EncodePK builds the external identifier for a row of this model.
func (m *ModelDescriptor) EncodePK(row map[string]any) string {
	parts := make([]string, len(m.PKColumns))
	for i, name := range m.PKColumns {
		parts[i] = cast.ToString(row[name])
	}
	return EncodePKParts(parts)
}

// DecodePK decodes the external identifier into native primary-key
// values matched positionally against PKColumns. Values are converted
// to the column's kind; an unparsable component is a ValidationError.
func (m *ModelDescriptor) DecodePK(raw string) ([]any, error) {
	parts, err := DecodePKParts(raw, len(m.PKColumns))
	if err != nil {
		return nil, err
	}

	values := make([]any, len(parts))
	for i, part := range parts {
		col, ok := m.Column(m.PKColumns[i])
		if !ok {
			values[i] = part
			continue
		}

		switch col.Kind {
		case KindInteger:
			n, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				return nil, NewValidationError(fmt.Sprintf("invalid integer primary key: %s", part))
			}
			values[i] = n
		case KindNumber:
			f, err := strconv.ParseFloat(part, 64)
			if err != nil {
				return nil, NewValidationError(fmt.Sprintf("invalid numeric primary key: %s", part))
			}
			values[i] = f
		default:
			values[i] = part
		}
	}

	return values, nil
}
