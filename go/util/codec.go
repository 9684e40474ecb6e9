package util

import (
	"encoding/json"
	"reflect"
)

// Codec encodes/decodes values stored as raw bytes in the persistent
// key-value store.
type Codec interface {
	Encode(interface{}) ([]byte, error)
	Decode([]byte) (interface{}, error)
}

// JSONCodec encodes values as JSON. Decode allocates a fresh instance of
// the same type as the prototype passed to NewJSONCodec.
type JSONCodec struct {
	protoType reflect.Type
}

// NewJSONCodec returns a Codec that marshals/unmarshals values shaped like
// proto (a zero value, pointer, slice, or map of the type to decode into).
func NewJSONCodec(proto interface{}) JSONCodec {
	return JSONCodec{protoType: reflect.TypeOf(proto)}
}

func (c JSONCodec) Encode(data interface{}) ([]byte, error) {
	return json.Marshal(data)
}

func (c JSONCodec) Decode(raw []byte) (interface{}, error) {
	var target reflect.Value
	if c.protoType.Kind() == reflect.Ptr {
		target = reflect.New(c.protoType.Elem())
	} else {
		target = reflect.New(c.protoType)
	}
	if err := json.Unmarshal(raw, target.Interface()); err != nil {
		return nil, err
	}
	if c.protoType.Kind() == reflect.Ptr {
		return target.Interface(), nil
	}
	return target.Elem().Interface(), nil
}
