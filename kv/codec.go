package kv

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strconv"
)

// Codec turns caller values into the bytes a backend stores and back.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, dst any) error
}

// JSONCodec stores values as JSON. Scalars, slices and string-keyed maps
// round-trip. Decoding into *any, *map[string]any or *[]any yields int64 for
// integral numbers (uint64 above the int64 range), float64 for the rest,
// []any and map[string]any.
type JSONCodec struct{}

func (JSONCodec) Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return data, nil
}

func (JSONCodec) Decode(data []byte, dst any) error {
	if err := checkTarget(dst); err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrDecoding, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return fmt.Errorf("%w: trailing data after JSON value", ErrDecoding)
	}
	switch d := dst.(type) {
	case *any:
		*d = normalizeNumbers(*d)
	case *map[string]any:
		for k, v := range *d {
			(*d)[k] = normalizeNumbers(v)
		}
	case *[]any:
		for i, v := range *d {
			(*d)[i] = normalizeNumbers(v)
		}
	}
	return nil
}

// normalizeNumbers replaces the json.Number values left by UseNumber.
func normalizeNumbers(v any) any {
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n
		}
		if n, err := strconv.ParseUint(string(x), 10, 64); err == nil {
			return n
		}
		f, _ := x.Float64()
		return f
	case map[string]any:
		for k, e := range x {
			x[k] = normalizeNumbers(e)
		}
	case []any:
		for i, e := range x {
			x[i] = normalizeNumbers(e)
		}
	}
	return v
}

// RawCodec passes byte slices through untouched. It is meant for stores that
// hold payloads already encoded by someone else.
type RawCodec struct{}

func (RawCodec) Encode(v any) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return append([]byte(nil), b...), nil
	case json.RawMessage:
		return append([]byte(nil), b...), nil
	case string:
		return []byte(b), nil
	default:
		return nil, fmt.Errorf("%w: raw codec cannot encode %T", ErrEncoding, v)
	}
}

func (RawCodec) Decode(data []byte, dst any) error {
	switch d := dst.(type) {
	case *[]byte:
		*d = append([]byte(nil), data...)
	case *json.RawMessage:
		*d = append(json.RawMessage(nil), data...)
	case *string:
		*d = string(data)
	case *any:
		*d = append([]byte(nil), data...)
	default:
		return fmt.Errorf("%w: raw codec cannot decode into %T", ErrDecoding, dst)
	}
	return nil
}

var errNilTarget = errors.New("decode target must be a non-nil pointer")

func checkTarget(dst any) error {
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("%w: %v (got %T)", ErrDecoding, errNilTarget, dst)
	}
	return nil
}
