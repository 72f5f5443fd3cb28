package jsonx

import (
	jsoniter "github.com/json-iterator/go"
)

var jsonx = jsoniter.ConfigCompatibleWithStandardLibrary

// canonical sorts map keys so that the same value always encodes to the
// same bytes. Used for anything that ends up inside a state fingerprint.
var canonical = jsoniter.Config{
	EscapeHTML:             true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
}.Froze()

func Marshal(v interface{}) ([]byte, error) {
	return jsonx.Marshal(v)
}

func Unmarshal(data []byte, v interface{}) error {
	return jsonx.Unmarshal(data, v)
}

// MarshalCanonical encodes v with deterministic map ordering.
func MarshalCanonical(v interface{}) ([]byte, error) {
	return canonical.Marshal(v)
}
