package gossip

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompareVersionedValue(t *testing.T) {
	cases := []struct {
		name string
		a, b VersionedValue
		want int
	}{
		{"equal", VersionedValue{TID: 1, Value: []byte("x")}, VersionedValue{TID: 1, Value: []byte("x")}, 0},
		{"tid orders first", VersionedValue{TID: 1}, VersionedValue{TID: 2}, -1},
		{"nil before non-nil", VersionedValue{Value: nil}, VersionedValue{Value: []byte{}}, -1},
		{"byte order within equal tid", VersionedValue{Value: []byte("a")}, VersionedValue{Value: []byte("b")}, -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, CompareVersionedValue(tc.a, tc.b))
		})
	}
}

func TestVersionedValueFastPathRoundTrip(t *testing.T) {
	values := []VersionedValue{
		{TID: 0, Value: []byte("alpha")},
		{TID: 0, Value: []byte("")},
		{TID: 0, Value: []byte("gamma")},
	}

	var buf bytes.Buffer
	require.NoError(t, EncodeVersionedValues(&buf, values))
	require.Equal(t, byte(0), buf.Bytes()[0], "expected fast-path tag")

	got, err := DecodeVersionedValues(bytes.NewReader(buf.Bytes()), len(values))
	require.NoError(t, err)
	require.Equal(t, values, got)
}

func TestVersionedValueSlowPathRoundTrip(t *testing.T) {
	values := []VersionedValue{
		{TID: 7, Value: []byte("pending")},
		{TID: -3, Value: nil},
		{TID: 0, Value: nil},
	}

	var buf bytes.Buffer
	require.NoError(t, EncodeVersionedValues(&buf, values))
	require.Equal(t, byte(1), buf.Bytes()[0], "expected slow-path tag: a nil value forces it")

	got, err := DecodeVersionedValues(bytes.NewReader(buf.Bytes()), len(values))
	require.NoError(t, err)
	require.Equal(t, values, got)
}

func TestDecodeVersionedValuesUnknownTag(t *testing.T) {
	buf := bytes.NewReader([]byte{0x02})
	_, err := DecodeVersionedValues(buf, 1)
	require.ErrorIs(t, err, ErrUnknownTag)
}
