package wire

import (
	"bytes"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
)

// msgpackDecoder walks containers itself so depth is checked before a
// nested map or array is entered; scalars go through the library.
type msgpackDecoder struct {
	r        *bytes.Reader
	dec      *msgpack.Decoder
	maxDepth int
}

func decodeMsgpack(b []byte, maxDepth int) (any, error) {
	r := bytes.NewReader(b)
	d := &msgpackDecoder{r: r, dec: msgpack.NewDecoder(r), maxDepth: maxDepth}
	v, err := d.value(0)
	if err != nil {
		return nil, err
	}
	if r.Len() > 0 {
		return nil, malformed(nil, "%d trailing bytes after document", r.Len())
	}
	return v, nil
}

func isMap(c byte) bool {
	return msgpcode.IsFixedMap(c) || c == msgpcode.Map16 || c == msgpcode.Map32
}

func isArray(c byte) bool {
	return msgpcode.IsFixedArray(c) || c == msgpcode.Array16 || c == msgpcode.Array32
}

func (d *msgpackDecoder) value(depth int) (any, error) {
	c, err := d.dec.PeekCode()
	if err != nil {
		return nil, malformed(err, "truncated payload")
	}
	switch {
	case isMap(c):
		return d.object(depth + 1)
	case isArray(c):
		return d.array(depth + 1)
	}
	v, err := d.dec.DecodeInterfaceLoose()
	if err != nil {
		return nil, malformed(err, "invalid value")
	}
	return scalar(v)
}

func (d *msgpackDecoder) object(depth int) (any, error) {
	if depth > d.maxDepth {
		return nil, tooDeep(d.maxDepth)
	}
	n, err := d.dec.DecodeMapLen()
	if err != nil {
		return nil, malformed(err, "invalid map header")
	}
	if n == -1 {
		return nil, nil
	}
	// every entry needs at least two bytes
	if n*2 > d.r.Len() {
		return nil, malformed(nil, "map of %d entries truncated", n)
	}
	obj := NewObject(n)
	for i := 0; i < n; i++ {
		k, err := d.key()
		if err != nil {
			return nil, err
		}
		v, err := d.value(depth)
		if err != nil {
			return nil, err
		}
		obj.Set(k, v)
	}
	return obj, nil
}

func (d *msgpackDecoder) array(depth int) (any, error) {
	if depth > d.maxDepth {
		return nil, tooDeep(d.maxDepth)
	}
	n, err := d.dec.DecodeArrayLen()
	if err != nil {
		return nil, malformed(err, "invalid array header")
	}
	if n == -1 {
		return nil, nil
	}
	if n > d.r.Len() {
		return nil, malformed(nil, "array of %d elements truncated", n)
	}
	out := make([]any, 0, n)
	for i := 0; i < n; i++ {
		v, err := d.value(depth)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (d *msgpackDecoder) key() (string, error) {
	c, err := d.dec.PeekCode()
	if err != nil {
		return "", malformed(err, "truncated payload")
	}
	if isMap(c) || isArray(c) {
		return "", malformed(nil, "map key must be a scalar")
	}
	v, err := d.dec.DecodeInterfaceLoose()
	if err != nil {
		return "", malformed(err, "invalid map key")
	}
	v, err = scalar(v)
	if err != nil {
		return "", err
	}
	return keyString(v), nil
}

func encodeMsgpack(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.UseCompactInts(true)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeMsgpack writes the object as a msgpack map in field order.
func (o *Object) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeMapLen(len(o.Fields)); err != nil {
		return err
	}
	for _, f := range o.Fields {
		if err := enc.EncodeString(f.Key); err != nil {
			return err
		}
		if err := enc.Encode(f.Value); err != nil {
			return err
		}
	}
	return nil
}

var _ msgpack.CustomEncoder = (*Object)(nil)
