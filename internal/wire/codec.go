package wire

import (
	"bytes"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// Marshal encodes v the way the conductor's serializer does: integers in
// their most compact form, byte slices as bin, structs as maps in field
// declaration order.
//
// This is the ONLY encoder that may be used for bytes that are signed.
func Marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.UseCompactInts(true)
	if err := enc.Encode(v); err != nil {
		return nil, errors.Wrapf(err, "msgpack encode %T", v)
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes MessagePack bytes into v.
func Unmarshal(data []byte, v interface{}) error {
	if err := msgpack.Unmarshal(data, v); err != nil {
		return errors.Wrapf(err, "msgpack decode %T", v)
	}
	return nil
}

// EncodeExternIO serializes a zome function argument or return value.
func EncodeExternIO(v interface{}) ([]byte, error) {
	return Marshal(v)
}

// DecodeExternIO deserializes a zome function return value.
func DecodeExternIO(data []byte, v interface{}) error {
	return Unmarshal(data, v)
}
