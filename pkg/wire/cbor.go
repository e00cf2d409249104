package wire

import (
	"encoding/binary"
	"math"
	"reflect"
	"sort"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

const cborMinDepth = 4

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("wire: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cborDecMode(DefaultMaxDepth)
	if err != nil {
		panic("wire: CBOR decoder initialization failed: " + err.Error())
	}
}

func cborDecMode(maxDepth int) (cbor.DecMode, error) {
	if maxDepth < cborMinDepth {
		maxDepth = cborMinDepth
	}
	return cbor.DecOptions{
		DefaultMapType:  reflect.TypeOf(map[string]any(nil)),
		MaxNestedLevels: maxDepth,
		DupMapKey:       cbor.DupMapKeyQuiet,
	}.DecMode()
}

// decodeCBOR accepts the alternate producer format. CBOR maps come back as
// Go maps, so object fields are ordered by key rather than by the sender.
func decodeCBOR(b []byte, maxDepth int) (any, error) {
	dm := decMode
	if maxDepth != DefaultMaxDepth {
		var err error
		if dm, err = cborDecMode(maxDepth); err != nil {
			return nil, err
		}
	}
	var v any
	if err := dm.Unmarshal(b, &v); err != nil {
		return nil, malformed(err, "invalid cbor")
	}
	return fromCBOR(v, 0, maxDepth)
}

func fromCBOR(v any, depth, maxDepth int) (any, error) {
	switch x := v.(type) {
	case map[string]any:
		if depth+1 > maxDepth {
			return nil, tooDeep(maxDepth)
		}
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		obj := NewObject(len(keys))
		for _, k := range keys {
			cv, err := fromCBOR(x[k], depth+1, maxDepth)
			if err != nil {
				return nil, err
			}
			obj.Set(k, cv)
		}
		return obj, nil
	case []any:
		if depth+1 > maxDepth {
			return nil, tooDeep(maxDepth)
		}
		out := make([]any, len(x))
		for i, e := range x {
			cv, err := fromCBOR(e, depth+1, maxDepth)
			if err != nil {
				return nil, err
			}
			out[i] = cv
		}
		return out, nil
	}
	return scalar(v)
}

// MarshalCBOR writes the object as a definite-length CBOR map in field
// order.
func (o *Object) MarshalCBOR() ([]byte, error) {
	out := cborHead(5, uint64(len(o.Fields)))
	for _, f := range o.Fields {
		k, err := encMode.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		v, err := encMode.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		out = append(out, k...)
		out = append(out, v...)
	}
	return out, nil
}

var _ cbor.Marshaler = (*Object)(nil)

func cborHead(major byte, n uint64) []byte {
	m := major << 5
	switch {
	case n < 24:
		return []byte{m | byte(n)}
	case n <= math.MaxUint8:
		return []byte{m | 24, byte(n)}
	case n <= math.MaxUint16:
		b := []byte{m | 25, 0, 0}
		binary.BigEndian.PutUint16(b[1:], uint16(n))
		return b
	case n <= math.MaxUint32:
		b := []byte{m | 26, 0, 0, 0, 0}
		binary.BigEndian.PutUint32(b[1:], uint32(n))
		return b
	}
	b := []byte{m | 27, 0, 0, 0, 0, 0, 0, 0, 0}
	binary.BigEndian.PutUint64(b[1:], n)
	return b
}
