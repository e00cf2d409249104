package schema

import (
	"fmt"
	"math"

	"raisu/pkg/domain"
	"raisu/pkg/wire"
)

// Integers up to 2^53 survive a round trip through float64.
const maxSafeInt = 1 << 53

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func index(path string, i int) string {
	return fmt.Sprintf("%s[%d]", path, i)
}

func mismatch(path, format string, args ...interface{}) error {
	return &domain.FormatError{
		Kind: domain.FormatSchemaMismatch,
		Path: path,
		Msg:  fmt.Sprintf(format, args...),
	}
}

func wrongType(path, want string, got any) error {
	return mismatch(path, "expected %s, found %s", want, wire.TypeName(got))
}

// record reads the fields of one wire map, reporting every error against
// the map's path.
type record struct {
	obj  *wire.Object
	path string
}

func asRecord(v any, path string) (record, error) {
	if obj, ok := v.(*wire.Object); ok {
		return record{obj: obj, path: path}, nil
	}
	return record{}, wrongType(path, "map", v)
}

func (r record) at(key string) string { return join(r.path, key) }

// lookup treats an explicit nil like an absent key.
func (r record) lookup(key string) (any, bool) {
	v, ok := r.obj.Get(key)
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

func (r record) require(key string) (any, error) {
	v, ok := r.lookup(key)
	if !ok {
		return nil, mismatch(r.at(key), "missing required field")
	}
	return v, nil
}

func (r record) str(key string) (string, error) {
	v, err := r.require(key)
	if err != nil {
		return "", err
	}
	return toString(v, r.at(key))
}

// optStr maps absent, nil and "" to nil.
func (r record) optStr(key string) (*string, error) {
	v, ok := r.lookup(key)
	if !ok {
		return nil, nil
	}
	s, err := toString(v, r.at(key))
	if err != nil || s == "" {
		return nil, err
	}
	return &s, nil
}

func (r record) float(key string) (float64, error) {
	v, err := r.require(key)
	if err != nil {
		return 0, err
	}
	return toFloat(v, r.at(key))
}

func (r record) optFloat(key string) (*float64, error) {
	v, ok := r.lookup(key)
	if !ok {
		return nil, nil
	}
	if s, isStr := v.(string); isStr && s == "" {
		return nil, nil
	}
	f, err := toFloat(v, r.at(key))
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (r record) int(key string) (int64, error) {
	v, err := r.require(key)
	if err != nil {
		return 0, err
	}
	return toInt(v, r.at(key))
}

func (r record) optInt(key string) (*int64, error) {
	v, ok := r.lookup(key)
	if !ok {
		return nil, nil
	}
	if s, isStr := v.(string); isStr && s == "" {
		return nil, nil
	}
	i, err := toInt(v, r.at(key))
	if err != nil {
		return nil, err
	}
	return &i, nil
}

func (r record) intOr(key string, def int64) (int64, error) {
	i, err := r.optInt(key)
	if err != nil || i == nil {
		return def, err
	}
	return *i, nil
}

func (r record) boolOr(key string, def bool) (bool, error) {
	v, ok := r.lookup(key)
	if !ok {
		return def, nil
	}
	b, isBool := v.(bool)
	if !isBool {
		return false, wrongType(r.at(key), "bool", v)
	}
	return b, nil
}

func (r record) list(key string) ([]any, error) {
	v, err := r.require(key)
	if err != nil {
		return nil, err
	}
	l, ok := v.([]any)
	if !ok {
		return nil, wrongType(r.at(key), "array", v)
	}
	return l, nil
}

// listOr returns an empty slice for an absent or nil array.
func (r record) listOr(key string) ([]any, error) {
	v, ok := r.lookup(key)
	if !ok {
		return []any{}, nil
	}
	l, isList := v.([]any)
	if !isList {
		return nil, wrongType(r.at(key), "array", v)
	}
	return l, nil
}

func (r record) strings(key string) ([]string, error) {
	l, err := r.list(key)
	if err != nil {
		return nil, err
	}
	return toStrings(l, r.at(key))
}

func (r record) record(key string) (record, error) {
	v, err := r.require(key)
	if err != nil {
		return record{}, err
	}
	return asRecord(v, r.at(key))
}

func toString(v any, path string) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	}
	return "", wrongType(path, "string", v)
}

func toStrings(l []any, path string) ([]string, error) {
	out := make([]string, len(l))
	for i, e := range l {
		s, err := toString(e, index(path, i))
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

func toFloat(v any, path string) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case int64:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	}
	return 0, wrongType(path, "float64", v)
}

// toInt accepts any numeric representation that converts without loss.
func toInt(v any, path string) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case uint64:
		return 0, mismatch(path, "integer %d out of range", x)
	case float64:
		if math.Trunc(x) != x || math.Abs(x) > maxSafeInt {
			return 0, mismatch(path, "expected integer, found non-integral or unsafe float %v", x)
		}
		return int64(x), nil
	}
	return 0, wrongType(path, "integer", v)
}
