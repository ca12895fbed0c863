// Package typemap maps declared destination column types to the scalar
// kinds source fields are coerced into before upload.
package typemap

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind is the closed enumeration of scalar kinds a source field can be
// coerced into. Declared types outside the recognized classification map to
// KindPassthrough: coercion is best-effort, never a hard failure at
// classification time.
type Kind int

const (
	KindPassthrough Kind = iota // unrecognized type, field sent as raw text
	KindInt
	KindFloat
	KindString
	KindTimestamp
	KindBool
)

// String returns a human-readable name for the Kind.
func (k Kind) String() string {
	switch k {
	case KindPassthrough:
		return "passthrough"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindTimestamp:
		return "timestamp"
	case KindBool:
		return "bool"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Classify structurally classifies a declared SQL type into a Kind.
// Classification is by substring, not exact type identity: it covers the
// open set of aliases information_schema reports (e.g. "character varying",
// "timestamp without time zone", "numeric(10,2)").
func Classify(declared string) Kind {
	t := strings.ToLower(strings.TrimSpace(declared))

	switch {
	case t == "":
		return KindPassthrough

	// interval and the range types share prefixes with the numeric and
	// date arms ("interval" vs "int", "daterange" vs "date") but have no
	// scalar coercion; they must stay passthrough.
	case strings.Contains(t, "interval"),
		strings.Contains(t, "range"):
		return KindPassthrough

	case strings.Contains(t, "bigint"),
		strings.Contains(t, "smallint"),
		strings.Contains(t, "integer"),
		strings.HasPrefix(t, "int"),
		strings.Contains(t, "serial"):
		return KindInt

	case strings.Contains(t, "double"),
		strings.Contains(t, "real"),
		strings.Contains(t, "numeric"),
		strings.Contains(t, "decimal"),
		strings.HasPrefix(t, "float"):
		return KindFloat

	case strings.Contains(t, "timestamp"),
		strings.HasPrefix(t, "date"),
		strings.HasPrefix(t, "time"):
		return KindTimestamp

	case strings.Contains(t, "char"),
		strings.Contains(t, "text"),
		strings.Contains(t, "uuid"),
		strings.Contains(t, "name"):
		return KindString

	case strings.HasPrefix(t, "bool"):
		return KindBool

	default:
		return KindPassthrough
	}
}

// timestampLayouts are tried in order when coercing KindTimestamp fields.
// Covers ISO 8601 with and without time, and the compact YYYYMMDD form used
// by OMOP vocabulary downloads.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"20060102",
}

// Coerce parses a raw text field into the Go scalar matching kind.
// An empty field always coerces to SQL NULL (nil). A malformed non-empty
// field returns an error carrying the raw value; the caller attributes it
// to file, row and column.
func Coerce(raw string, kind Kind) (any, error) {
	if raw == "" {
		return nil, nil
	}

	switch kind {
	case KindInt:
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("cannot parse %q as integer", raw)
		}
		return v, nil

	case KindFloat:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("cannot parse %q as float", raw)
		}
		return v, nil

	case KindTimestamp:
		for _, layout := range timestampLayouts {
			if v, err := time.Parse(layout, raw); err == nil {
				return v, nil
			}
		}
		return nil, fmt.Errorf("cannot parse %q as timestamp", raw)

	case KindBool:
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("cannot parse %q as bool", raw)
		}
		return v, nil

	case KindString, KindPassthrough:
		return raw, nil

	default:
		return raw, nil
	}
}
