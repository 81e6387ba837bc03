package uapi

import "unsafe"

// FlatBinderObject is the wire representation of a binder reference or file
// descriptor embedded in a transaction payload.
type FlatBinderObject struct {
	Type    uint32
	Flags   uint32
	Handle  uint64 // local Ptr or remote Handle, selected by Type
	Cookie  uint64
}

const sizeofFlatBinderObject = unsafe.Sizeof(FlatBinderObject{})

// BinderTransactionData is the fixed-size transaction header written to the
// read buffer for BR_TRANSACTION/BR_REPLY.
type BinderTransactionData struct {
	Target      uint64 // handle (remote) or ptr (local), selected by context
	Cookie      uint64
	Code        uint32
	Flags       uint32
	SenderPID   int32
	SenderEUID  uint32
	DataSize    uint64
	OffsetsSize uint64
	BufferPtr   uint64 // address of the data payload inside the recipient's BufferArena
	OffsetsPtr  uint64 // address of the offsets array, 0 if OffsetsSize == 0
}

const sizeofBinderTransactionData = unsafe.Sizeof(BinderTransactionData{})

// BinderTransactionDataSg extends BinderTransactionData with the
// scatter-gather buffer size used by BC_TRANSACTION_SG/BC_REPLY_SG.
type BinderTransactionDataSg struct {
	TransactionData BinderTransactionData
	BuffersSize     uint64
}

const sizeofBinderTransactionDataSg = unsafe.Sizeof(BinderTransactionDataSg{})

// BinderTransactionDataSecctx is BinderTransactionData plus the address of
// an attached security context, used for BR_TRANSACTION_SEC_CTX.
type BinderTransactionDataSecctx struct {
	TransactionData BinderTransactionData
	SecctxAddr      uint64
}

const sizeofBinderTransactionDataSecctx = unsafe.Sizeof(BinderTransactionDataSecctx{})

// BinderWriteRead mirrors struct binder_write_read: the BINDER_WRITE_READ
// ioctl argument, carrying a write stream of BC_* commands and a read
// buffer to be filled with BR_* commands.
type BinderWriteRead struct {
	WriteSize   uint64
	WriteConsumed uint64
	WriteBuffer uint64
	ReadSize    uint64
	ReadConsumed uint64
	ReadBuffer  uint64
}

// BinderNodeDebugInfo answers BINDER_GET_NODE_DEBUG_INFO.
type BinderNodeDebugInfo struct {
	Ptr           uint64
	Cookie        uint64
	HasStrongRef  uint32
	HasWeakRef    uint32
}

const sizeofBinderNodeDebugInfo = unsafe.Sizeof(BinderNodeDebugInfo{})

// BinderNodeInfoForRef answers BINDER_GET_NODE_INFO_FOR_REF.
type BinderNodeInfoForRef struct {
	Handle      uint32
	StrongCount uint32
	WeakCount   uint32
	Reserved    [4]uint32
}

const sizeofBinderNodeInfoForRef = unsafe.Sizeof(BinderNodeInfoForRef{})

// BinderPtrCookie is the payload of BR_INCREFS/BR_ACQUIRE/BR_RELEASE/BR_DECREFS.
type BinderPtrCookie struct {
	Ptr    uint64
	Cookie uint64
}

// BinderHandleCookie is the payload of BC_REQUEST_DEATH_NOTIFICATION and
// BC_CLEAR_DEATH_NOTIFICATION.
type BinderHandleCookie struct {
	Handle uint32
	_      uint32 // padding to align Cookie
	Cookie uint64
}
