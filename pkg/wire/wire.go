// Package wire turns the decrypted snapshot payload into a loosely typed
// document and back. It knows nothing about the snapshot schema.
//
// A decoded document is built from these values only:
//
//	nil, bool, int64, uint64 (above MaxInt64), float64, string, []byte,
//	[]any, *Object
package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"raisu/pkg/domain"
)

const DefaultMaxDepth = 64

type Codec string

const (
	Msgpack Codec = "msgpack"
	CBOR    Codec = "cbor"
)

func ParseCodec(s string) (Codec, error) {
	switch Codec(strings.ToLower(strings.TrimSpace(s))) {
	case "", Msgpack:
		return Msgpack, nil
	case CBOR:
		return CBOR, nil
	}
	return "", fmt.Errorf("unknown wire format %q", s)
}

type Options struct {
	Codec    Codec
	MaxDepth int
}

func (o Options) depth() int {
	if o.MaxDepth <= 0 {
		return DefaultMaxDepth
	}
	return o.MaxDepth
}

// Decode parses one complete document. Truncated input, trailing bytes and
// nesting deeper than the configured limit are MALFORMED_WIRE_DATA.
func Decode(b []byte, opts Options) (any, error) {
	if len(b) == 0 {
		return nil, malformed(nil, "empty payload")
	}
	switch opts.Codec {
	case "", Msgpack:
		return decodeMsgpack(b, opts.depth())
	case CBOR:
		return decodeCBOR(b, opts.depth())
	}
	return nil, malformed(nil, "unknown wire format %q", opts.Codec)
}

// Encode serializes a document. Object fields keep their order.
func Encode(v any, c Codec) ([]byte, error) {
	switch c {
	case "", Msgpack:
		return encodeMsgpack(v)
	case CBOR:
		return encMode.Marshal(v)
	}
	return nil, fmt.Errorf("unknown wire format %q", c)
}

type Field struct {
	Key   string
	Value any
}

// Object is a map that remembers insertion order. A repeated key replaces
// the earlier value in place.
type Object struct {
	Fields []Field
	index  map[string]int
}

func NewObject(n int) *Object {
	return &Object{Fields: make([]Field, 0, n), index: make(map[string]int, n)}
}

func (o *Object) Set(key string, v any) {
	if o.index == nil {
		o.index = make(map[string]int, len(o.Fields)+1)
		for i, f := range o.Fields {
			o.index[f.Key] = i
		}
	}
	if i, ok := o.index[key]; ok {
		o.Fields[i].Value = v
		return
	}
	o.index[key] = len(o.Fields)
	o.Fields = append(o.Fields, Field{Key: key, Value: v})
}

func (o *Object) Get(key string) (any, bool) {
	if o == nil {
		return nil, false
	}
	if o.index != nil {
		if i, ok := o.index[key]; ok {
			return o.Fields[i].Value, true
		}
		return nil, false
	}
	for i := len(o.Fields) - 1; i >= 0; i-- {
		if o.Fields[i].Key == key {
			return o.Fields[i].Value, true
		}
	}
	return nil, false
}

func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.Fields)
}

func (o *Object) Keys() []string {
	keys := make([]string, 0, o.Len())
	for _, f := range o.Fields {
		keys = append(keys, f.Key)
	}
	return keys
}

func (o *Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range o.Fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// TypeName names the document type of v for error messages.
func TypeName(v any) string {
	switch v.(type) {
	case nil:
		return "nil"
	case bool:
		return "bool"
	case int64, uint64:
		return "integer"
	case float64:
		return "float64"
	case string:
		return "string"
	case []byte:
		return "binary"
	case []any:
		return "array"
	case *Object:
		return "map"
	}
	return fmt.Sprintf("%T", v)
}

// scalar folds the leaf types a codec may hand back into the document set.
func scalar(v any) (any, error) {
	switch x := v.(type) {
	case nil, bool, int64, float64, string, []byte:
		return x, nil
	case uint64:
		if x <= math.MaxInt64 {
			return int64(x), nil
		}
		return x, nil
	case int:
		return int64(x), nil
	case float32:
		return float64(x), nil
	case time.Time:
		return x.UnixMilli(), nil
	}
	return nil, malformed(nil, "unsupported value of type %T", v)
}

func keyString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case nil:
		return "null"
	}
	return fmt.Sprint(v)
}

func malformed(err error, format string, args ...interface{}) error {
	return &domain.FormatError{
		Kind: domain.FormatMalformedWireData,
		Msg:  fmt.Sprintf(format, args...),
		Err:  err,
	}
}

func tooDeep(limit int) error {
	return malformed(nil, "nesting exceeds %d levels", limit)
}
