package kv

import (
	"errors"
	"reflect"
	"testing"
)

func TestJSONCodecRoundTrip(t *testing.T) {
	codec := JSONCodec{}
	values := []any{
		nil,
		true,
		int64(42),
		int64(9007199254740993),
		int64(-9223372036854775808),
		uint64(18446744073709551615),
		-3.5,
		1e300,
		"hello",
		"",
		[]any{"a", int64(1), false, nil},
		map[string]any{
			"user": "alice",
			"tags": []any{"x", "y"},
			"meta": map[string]any{"age": int64(30), "admin": true},
		},
		[]any{},
		map[string]any{},
	}

	for _, v := range values {
		data, err := codec.Encode(v)
		if err != nil {
			t.Fatalf("Encode(%#v) error = %v", v, err)
		}
		var out any
		if err := codec.Decode(data, &out); err != nil {
			t.Fatalf("Decode(%s) error = %v", data, err)
		}
		if !reflect.DeepEqual(out, v) {
			t.Fatalf("round trip = %#v, want %#v", out, v)
		}
	}
}

func TestJSONCodecTypedTarget(t *testing.T) {
	type session struct {
		User  string   `json:"user"`
		Roles []string `json:"roles"`
	}
	codec := JSONCodec{}
	in := session{User: "alice", Roles: []string{"admin"}}

	data, err := codec.Encode(in)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	var out session
	if err := codec.Decode(data, &out); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if !reflect.DeepEqual(out, in) {
		t.Fatalf("Decode() = %#v, want %#v", out, in)
	}
}

func TestJSONCodecEncodeErrors(t *testing.T) {
	cyclic := map[string]any{}
	cyclic["self"] = cyclic

	tests := []struct {
		name  string
		value any
	}{
		{"channel", make(chan int)},
		{"func", func() {}},
		{"complex", complex(1, 2)},
		{"cycle", cyclic},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := JSONCodec{}.Encode(tt.value)
			if !errors.Is(err, ErrEncoding) {
				t.Fatalf("Encode() error = %v, want ErrEncoding", err)
			}
		})
	}
}

func TestJSONCodecDecodeErrors(t *testing.T) {
	var out any
	for _, raw := range []string{"", "{", "nul", `{"a":1} trailing`, "\xff"} {
		if err := (JSONCodec{}).Decode([]byte(raw), &out); !errors.Is(err, ErrDecoding) {
			t.Fatalf("Decode(%q) error = %v, want ErrDecoding", raw, err)
		}
	}

	if err := (JSONCodec{}).Decode([]byte(`1`), out); !errors.Is(err, ErrDecoding) {
		t.Fatalf("Decode into non-pointer error = %v, want ErrDecoding", err)
	}
	var nilPtr *map[string]any
	if err := (JSONCodec{}).Decode([]byte(`{}`), nilPtr); !errors.Is(err, ErrDecoding) {
		t.Fatalf("Decode into nil pointer error = %v, want ErrDecoding", err)
	}
}

func TestRawCodec(t *testing.T) {
	codec := RawCodec{}
	payload := []byte(`{"already":"encoded"}`)

	data, err := codec.Encode(payload)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	payload[0] = 'X'
	if data[0] != '{' {
		t.Fatalf("Encode() must copy its input")
	}

	var out []byte
	if err := codec.Decode(data, &out); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if string(out) != `{"already":"encoded"}` {
		t.Fatalf("Decode() = %q", out)
	}

	if _, err := codec.Encode(42); !errors.Is(err, ErrEncoding) {
		t.Fatalf("Encode(int) error = %v, want ErrEncoding", err)
	}
	var n int
	if err := codec.Decode(data, &n); !errors.Is(err, ErrDecoding) {
		t.Fatalf("Decode(*int) error = %v, want ErrDecoding", err)
	}
}
