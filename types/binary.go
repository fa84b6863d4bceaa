package types

import "encoding/base64"

// BinaryValue is MOO's binary string type: an immutable byte sequence,
// rendered at the textdump/wire boundary as base64 per spec §6.3.
type BinaryValue struct {
	Bytes []byte
}

// NewBinary copies b into a new BinaryValue (value semantics: callers
// must not mutate b after passing ownership here is the safer default,
// but the copy keeps that invisible to callers).
func NewBinary(b []byte) BinaryValue {
	cp := make([]byte, len(b))
	copy(cp, b)
	return BinaryValue{Bytes: cp}
}

func (b BinaryValue) Type() TypeCode { return TYPE_BINARY }

func (b BinaryValue) String() string {
	return base64.StdEncoding.EncodeToString(b.Bytes)
}

func (b BinaryValue) Truthy() bool { return len(b.Bytes) > 0 }

func (b BinaryValue) Equal(other Value) bool {
	o, ok := other.(BinaryValue)
	if !ok || len(o.Bytes) != len(b.Bytes) {
		return false
	}
	for i := range b.Bytes {
		if b.Bytes[i] != o.Bytes[i] {
			return false
		}
	}
	return true
}

// Len returns the number of bytes.
func (b BinaryValue) Len() int { return len(b.Bytes) }
