// Package normalize flattens schemaless documents into relational rows following the
// column mapping in package model.
package normalize

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"agrofin/finsync/model"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// IgnoredField marks ledger documents that must never reach the relational store.
const IgnoredField = "isIgnored"

// IsIgnored reports whether the document carries isIgnored = true.
func IsIgnored(doc bson.M) bool {
	ignored, ok := doc[IgnoredField].(bool)
	return ok && ignored
}

// Rows converts every document into a row of table's columns.
func Rows(docs []bson.M, table model.Table) [][]any {
	rows := make([][]any, 0, len(docs))
	for _, doc := range docs {
		rows = append(rows, Row(doc, table))
	}
	return rows
}

// Row converts one document into column values in table order. It never fails:
// values that do not fit a rule are coerced to NULL or to their string form.
func Row(doc bson.M, table model.Table) []any {
	row := make([]any, len(table.Columns))
	for i, col := range table.Columns {
		value, _ := Lookup(doc, col.Path)
		row[i] = Fit(Coerce(value, col.Rule), col.Kind)
	}
	return row
}

// Fit makes a coerced value acceptable to a column of the given kind. Numeric columns accept
// numeric strings; NaN, infinities and anything else that is not a number become nil.
func Fit(value any, kind model.Kind) any {
	switch kind {
	case model.KindNumeric, model.KindInteger:
		switch v := value.(type) {
		case nil, int, int32, int64, decimal.Decimal:
			return v
		case float32:
			return finite(float64(v))
		case float64:
			return finite(v)
		case string:
			d, err := decimal.NewFromString(strings.TrimSpace(v))
			if err != nil {
				return nil
			}
			return d
		default:
			return nil
		}
	default:
		return value
	}
}

// Lookup resolves a dotted path through nested documents.
func Lookup(doc bson.M, path string) (any, bool) {
	var current any = doc
	for _, part := range strings.Split(path, ".") {
		switch node := current.(type) {
		case bson.M:
			v, ok := node[part]
			if !ok {
				return nil, false
			}
			current = v
		case map[string]any:
			v, ok := node[part]
			if !ok {
				return nil, false
			}
			current = v
		case bson.D:
			found := false
			for _, e := range node {
				if e.Key == part {
					current, found = e.Value, true
					break
				}
			}
			if !found {
				return nil, false
			}
		default:
			return nil, false
		}
	}
	return current, true
}

// Coerce applies a rule to a single document value.
func Coerce(value any, rule model.Rule) any {
	switch rule {
	case model.RuleIDList:
		return IDList(value)
	case model.RuleBool:
		return Bool(value)
	case model.RuleTimestamp:
		return Timestamp(value)
	default:
		return Value(value)
	}
}

// Value passes primitives through, converts opaque ids and nested structures to strings
// and maps absent values to nil.
func Value(value any) any {
	switch v := value.(type) {
	case nil, primitive.Null, primitive.Undefined:
		return nil
	case string, bool, int, int32, int64, float32, float64:
		return v
	case primitive.Decimal128:
		d, err := decimal.NewFromString(v.String())
		if err != nil {
			return v.String()
		}
		return d
	case primitive.DateTime:
		return v.Time().UTC()
	case time.Time:
		return v.UTC()
	default:
		return Stringify(v)
	}
}

func finite(f float64) any {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return nil
	}
	return f
}

// IDList renders references as a JSON array of strings. Absent input yields "[]".
func IDList(value any) string {
	ids := []string{}
	switch v := value.(type) {
	case nil, primitive.Null, primitive.Undefined:
	case primitive.A:
		ids = appendIDs(ids, v)
	case []any:
		ids = appendIDs(ids, v)
	case []string:
		ids = append(ids, v...)
	default:
		ids = append(ids, idString(v))
	}

	encoded, err := json.Marshal(ids)
	if err != nil {
		return "[]"
	}
	return string(encoded)
}

func appendIDs(ids []string, items []any) []string {
	for _, item := range items {
		switch item.(type) {
		case nil, primitive.Null, primitive.Undefined:
			continue
		}
		ids = append(ids, idString(item))
	}
	return ids
}

func idString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return Stringify(v)
}

// Bool coerces to a boolean, defaulting to false.
func Bool(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case int32:
		return v != 0
	case int64:
		return v != 0
	case int:
		return v != 0
	case float64:
		return v != 0
	case string:
		parsed, err := strconv.ParseBool(v)
		return err == nil && parsed
	default:
		return false
	}
}

// Timestamp decodes an encoded date string at UTC-3. Anything it cannot decode becomes nil.
func Timestamp(value any) any {
	switch v := value.(type) {
	case string:
		if t, ok := DecodeTimestamp(v); ok {
			return t
		}
		return nil
	case primitive.DateTime:
		return v.Time().In(Zone)
	case time.Time:
		return v.In(Zone)
	default:
		return nil
	}
}

// Stringify returns the string representation of an opaque or nested value.
// ObjectIDs render as hex and documents or arrays as compact JSON.
func Stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case primitive.ObjectID:
		return v.Hex()
	case bson.M, bson.D, map[string]any, primitive.A, []any:
		encoded, err := json.Marshal(plain(v))
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(encoded)
	default:
		return fmt.Sprint(plain(v))
	}
}

// plain rewrites BSON-specific values into types encoding/json renders sensibly.
func plain(value any) any {
	switch v := value.(type) {
	case primitive.ObjectID:
		return v.Hex()
	case primitive.DateTime:
		return v.Time().UTC().Format(time.RFC3339)
	case primitive.Decimal128:
		return v.String()
	case primitive.Binary:
		return hex.EncodeToString(v.Data)
	case bson.M:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = plain(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = plain(item)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(v))
		for _, e := range v {
			out[e.Key] = plain(e.Value)
		}
		return out
	case primitive.A:
		return plainSlice(v)
	case []any:
		return plainSlice(v)
	default:
		return v
	}
}

func plainSlice(items []any) []any {
	out := make([]any, len(items))
	for i, item := range items {
		out[i] = plain(item)
	}
	return out
}
