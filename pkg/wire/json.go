package wire

import (
	"encoding/json"
	"io"

	"github.com/pkg/errors"
)

// FromJSON reads a JSON document into the wire value set, keeping object key
// order. Integral numbers become int64, the rest float64.
func FromJSON(r io.Reader, maxDepth int) (any, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	dec := json.NewDecoder(r)
	dec.UseNumber()
	v, err := jsonValue(dec, 0, maxDepth)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("trailing data after JSON document")
	}
	return v, nil
}

func jsonValue(dec *json.Decoder, depth, maxDepth int) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, errors.Wrap(err, "read json")
	}
	switch t := tok.(type) {
	case json.Delim:
		if depth+1 > maxDepth {
			return nil, tooDeep(maxDepth)
		}
		if t == '{' {
			return jsonObject(dec, depth+1, maxDepth)
		}
		return jsonArray(dec, depth+1, maxDepth)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, nil
		}
		f, err := t.Float64()
		if err != nil {
			return nil, errors.Wrapf(err, "number %s", t)
		}
		return f, nil
	}
	return tok, nil
}

func jsonObject(dec *json.Decoder, depth, maxDepth int) (any, error) {
	obj := NewObject(8)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, errors.Wrap(err, "read json key")
		}
		key, _ := tok.(string)
		v, err := jsonValue(dec, depth, maxDepth)
		if err != nil {
			return nil, err
		}
		obj.Set(key, v)
	}
	if _, err := dec.Token(); err != nil {
		return nil, errors.Wrap(err, "read json")
	}
	return obj, nil
}

func jsonArray(dec *json.Decoder, depth, maxDepth int) (any, error) {
	out := []any{}
	for dec.More() {
		v, err := jsonValue(dec, depth, maxDepth)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if _, err := dec.Token(); err != nil {
		return nil, errors.Wrap(err, "read json")
	}
	return out, nil
}
