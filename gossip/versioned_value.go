package gossip

import (
	"bytes"
	"encoding/binary"
	"io"
)

/*
VersionedValue is the MVCC storage layer's leaf type: a (transaction id,
value) pair where tid == 0 means "committed, no pending transaction".
Ordering is lexicographic by (tid, value), matching the Lealone
VersionedValueType this is ported from (org.lealone.transaction.
VersionedValueType, and the wire shape used by gossip.NodeState's
ApplicationState entries whenever a value participates in MVCC).

The codec is intentionally batch-aware: gossip and the storage layer both
send many VersionedValues at once (one NodeState update can touch many
keys), and the common case is "nothing is mid-transaction", so a fast path
skips the tid/presence bookkeeping entirely.
*/

// VersionedValue is the leaf type each ApplicationState entry can hold when
// its StateKey participates in MVCC. Value == nil means logically absent
// (tombstone-like), distinct from an empty-but-present []byte{}.
type VersionedValue struct {
	TID   int64
	Value []byte
}

// CompareVersionedValue implements the documented total order: compare by
// tid (signed) first; if equal, delegate to the byte-string order of Value,
// with a nil Value sorting before any non-nil Value.
func CompareVersionedValue(a, b VersionedValue) int {
	switch {
	case a.TID < b.TID:
		return -1
	case a.TID > b.TID:
		return 1
	}
	if a.Value == nil && b.Value == nil {
		return 0
	}
	if a.Value == nil {
		return -1
	}
	if b.Value == nil {
		return 1
	}
	return bytes.Compare(a.Value, b.Value)
}

// EncodeVersionedValues writes a homogeneous batch of VersionedValue using
// the fast/slow path chosen by scanning the batch once:
//
//   - fast path (tag 0): every tid == 0 and every Value non-nil. Each value
//     is then just a length-prefixed byte string, in order.
//   - slow path (tag 1): each entry is varlong(tid), presence byte
//     (0 = nil value, 1 = present followed by a length-prefixed byte
//     string).
func EncodeVersionedValues(w *bytes.Buffer, values []VersionedValue) error {
	fastPath := true
	for _, v := range values {
		if v.TID != 0 || v.Value == nil {
			fastPath = false
			break
		}
	}

	if fastPath {
		w.WriteByte(0)
		for _, v := range values {
			if err := writeByteString(w, v.Value); err != nil {
				return err
			}
		}
		return nil
	}

	w.WriteByte(1)
	for _, v := range values {
		if err := encodeSingleVersionedValue(w, v); err != nil {
			return err
		}
	}
	return nil
}

// DecodeVersionedValues reads exactly n VersionedValue entries previously
// written by EncodeVersionedValues.
func DecodeVersionedValues(r *bytes.Reader, n int) ([]VersionedValue, error) {
	tag, err := r.ReadByte()
	if err != nil {
		return nil, newCodecError("decode-batch-tag", ErrCorrupt)
	}

	out := make([]VersionedValue, n)
	switch tag {
	case 0:
		for i := 0; i < n; i++ {
			val, err := readByteString(r)
			if err != nil {
				return nil, err
			}
			out[i] = VersionedValue{TID: 0, Value: val}
		}
	case 1:
		for i := 0; i < n; i++ {
			v, err := decodeSingleVersionedValue(r)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
	default:
		return nil, newCodecError("decode-batch-tag", ErrUnknownTag)
	}
	return out, nil
}

// encodeSingleVersionedValue writes varlong(tid), then a presence byte, then
// the value bytes if present. This is also the on-the-wire shape of one
// slow-path batch entry.
func encodeSingleVersionedValue(w *bytes.Buffer, v VersionedValue) error {
	writeVarLong(w, v.TID)
	if v.Value == nil {
		w.WriteByte(0)
		return nil
	}
	w.WriteByte(1)
	return writeByteString(w, v.Value)
}

func decodeSingleVersionedValue(r *bytes.Reader) (VersionedValue, error) {
	tid, err := readVarLong(r)
	if err != nil {
		return VersionedValue{}, err
	}
	present, err := r.ReadByte()
	if err != nil {
		return VersionedValue{}, newCodecError("decode-presence", ErrCorrupt)
	}
	if present == 0 {
		return VersionedValue{TID: tid, Value: nil}, nil
	}
	val, err := readByteString(r)
	if err != nil {
		return VersionedValue{}, err
	}
	return VersionedValue{TID: tid, Value: val}, nil
}

// writeVarLong/readVarLong use encoding/binary's signed (zigzag) varint,
// which is the stdlib's equivalent of the Java original's
// DataUtils.writeVarLong/readVarLong: a variable-length, sign-aware integer
// encoding. No third-party varint library in the retrieved examples offers
// anything encoding/binary doesn't already provide correctly here, so this
// one piece of the codec is justified stdlib use (see DESIGN.md).
func writeVarLong(w *bytes.Buffer, v int64) {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutVarint(buf[:], v)
	w.Write(buf[:n])
}

func readVarLong(r *bytes.Reader) (int64, error) {
	v, err := binary.ReadVarint(r)
	if err != nil {
		return 0, newCodecError("read-varlong", ErrCorrupt)
	}
	return v, nil
}

// writeByteString/readByteString: varint(len) followed by len raw bytes.
// A negative or absurd length is treated as corruption rather than an
// attempted huge allocation.
func writeByteString(w *bytes.Buffer, b []byte) error {
	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(len(b)))
	w.Write(lenBuf[:n])
	w.Write(b)
	return nil
}

func readByteString(r *bytes.Reader) ([]byte, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, newCodecError("read-bytestring-len", ErrCorrupt)
	}
	if n > uint64(r.Len()) {
		return nil, newCodecError("read-bytestring-body", ErrCorrupt)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, newCodecError("read-bytestring-body", ErrCorrupt)
	}
	return buf, nil
}
