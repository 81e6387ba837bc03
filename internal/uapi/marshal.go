package uapi

import "encoding/binary"

// MarshalTransactionData encodes a BinderTransactionData into the fixed
// reference layout, field by field, mirroring the teacher's hand-rolled
// binary.LittleEndian marshaling for fixed kernel ABI structs rather than
// a reflection-based codec.
func MarshalTransactionData(tr *BinderTransactionData) []byte {
	buf := make([]byte, sizeofBinderTransactionData)
	binary.LittleEndian.PutUint64(buf[0:8], tr.Target)
	binary.LittleEndian.PutUint64(buf[8:16], tr.Cookie)
	binary.LittleEndian.PutUint32(buf[16:20], tr.Code)
	binary.LittleEndian.PutUint32(buf[20:24], tr.Flags)
	binary.LittleEndian.PutUint32(buf[24:28], uint32(tr.SenderPID))
	binary.LittleEndian.PutUint32(buf[28:32], tr.SenderEUID)
	binary.LittleEndian.PutUint64(buf[32:40], tr.DataSize)
	binary.LittleEndian.PutUint64(buf[40:48], tr.OffsetsSize)
	binary.LittleEndian.PutUint64(buf[48:56], tr.BufferPtr)
	binary.LittleEndian.PutUint64(buf[56:64], tr.OffsetsPtr)
	return buf
}

// UnmarshalTransactionData decodes bytes produced by MarshalTransactionData.
func UnmarshalTransactionData(data []byte) (*BinderTransactionData, error) {
	if len(data) < int(sizeofBinderTransactionData) {
		return nil, ErrInsufficientData
	}
	tr := &BinderTransactionData{}
	tr.Target = binary.LittleEndian.Uint64(data[0:8])
	tr.Cookie = binary.LittleEndian.Uint64(data[8:16])
	tr.Code = binary.LittleEndian.Uint32(data[16:20])
	tr.Flags = binary.LittleEndian.Uint32(data[20:24])
	tr.SenderPID = int32(binary.LittleEndian.Uint32(data[24:28]))
	tr.SenderEUID = binary.LittleEndian.Uint32(data[28:32])
	tr.DataSize = binary.LittleEndian.Uint64(data[32:40])
	tr.OffsetsSize = binary.LittleEndian.Uint64(data[40:48])
	tr.BufferPtr = binary.LittleEndian.Uint64(data[48:56])
	tr.OffsetsPtr = binary.LittleEndian.Uint64(data[56:64])
	return tr, nil
}

// MarshalFlatBinderObject encodes a FlatBinderObject.
func MarshalFlatBinderObject(o *FlatBinderObject) []byte {
	buf := make([]byte, sizeofFlatBinderObject)
	binary.LittleEndian.PutUint32(buf[0:4], o.Type)
	binary.LittleEndian.PutUint32(buf[4:8], o.Flags)
	binary.LittleEndian.PutUint64(buf[8:16], o.Handle)
	binary.LittleEndian.PutUint64(buf[16:24], o.Cookie)
	return buf
}

// UnmarshalFlatBinderObject decodes bytes produced by MarshalFlatBinderObject.
func UnmarshalFlatBinderObject(data []byte) (*FlatBinderObject, error) {
	if len(data) < int(sizeofFlatBinderObject) {
		return nil, ErrInsufficientData
	}
	o := &FlatBinderObject{}
	o.Type = binary.LittleEndian.Uint32(data[0:4])
	o.Flags = binary.LittleEndian.Uint32(data[4:8])
	o.Handle = binary.LittleEndian.Uint64(data[8:16])
	o.Cookie = binary.LittleEndian.Uint64(data[16:24])
	return o, nil
}

// MarshalPtrCookie encodes the BR_INCREFS/BR_ACQUIRE/BR_RELEASE/BR_DECREFS payload.
func MarshalPtrCookie(ptr, cookie uint64) []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint64(buf[0:8], ptr)
	binary.LittleEndian.PutUint64(buf[8:16], cookie)
	return buf
}

// MarshalError is the error type returned for malformed wire buffers.
type MarshalError string

func (e MarshalError) Error() string { return string(e) }

const ErrInsufficientData MarshalError = "uapi: insufficient data for unmarshaling"
