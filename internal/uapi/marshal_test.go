package uapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalTransactionData_FieldByteOffsets(t *testing.T) {
	tr := &BinderTransactionData{
		Target:      0x1122334455667788,
		Cookie:      0xAABBCCDDEEFF0011,
		Code:        0x01020304,
		Flags:       TF_ONE_WAY,
		SenderPID:   42,
		SenderEUID:  1000,
		DataSize:    16,
		OffsetsSize: 8,
		BufferPtr:   0x4000,
		OffsetsPtr:  0x4010,
	}
	buf := MarshalTransactionData(tr)
	require.Len(t, buf, int(sizeofBinderTransactionData))

	// Code and Flags sit immediately after the two leading 8-byte fields.
	assert.Equal(t, byte(0x04), buf[16], "Code is little-endian, low byte first")
	assert.Equal(t, byte(0x01), buf[20], "Flags low byte carries TF_ONE_WAY")
	// SenderPID is a signed field stored at offset 24; negative values
	// must wrap to the full 32-bit pattern, not sign-extend into Flags.
	tr.SenderPID = -1
	buf = MarshalTransactionData(tr)
	assert.Equal(t, []byte{0xff, 0xff, 0xff, 0xff}, buf[24:28])
}

func TestUnmarshalTransactionData_RejectsShortBuffer(t *testing.T) {
	_, err := UnmarshalTransactionData(make([]byte, int(sizeofBinderTransactionData)-1))
	require.ErrorIs(t, err, ErrInsufficientData)
}

func TestUnmarshalTransactionData_RecoversNegativeSenderPID(t *testing.T) {
	tr := &BinderTransactionData{SenderPID: -7}
	buf := MarshalTransactionData(tr)
	got, err := UnmarshalTransactionData(buf)
	require.NoError(t, err)
	assert.Equal(t, int32(-7), got.SenderPID)
}

func TestMarshalFlatBinderObject_HandleAndCookieIndependentOfType(t *testing.T) {
	o := &FlatBinderObject{Type: BINDER_TYPE_HANDLE, Flags: FLAT_BINDER_FLAG_ACCEPTS_FDS, Handle: 7, Cookie: 0}
	buf := MarshalFlatBinderObject(o)
	got, err := UnmarshalFlatBinderObject(buf)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), got.Handle)
	assert.Equal(t, uint64(0), got.Cookie&0xFFFFFFFF00000000, "Cookie upper bits unused when zero")
}

func TestUnmarshalFlatBinderObject_RejectsShortBuffer(t *testing.T) {
	_, err := UnmarshalFlatBinderObject(make([]byte, 4))
	require.ErrorIs(t, err, ErrInsufficientData)
}

func TestMarshalPtrCookie_Layout(t *testing.T) {
	buf := MarshalPtrCookie(0x1, 0x2)
	require.Len(t, buf, 16)
	assert.Equal(t, byte(0x01), buf[0])
	assert.Equal(t, byte(0x02), buf[8])
}
