// Package uapi holds the wire-level structs and opcodes of the Binder
// protocol: transaction flags, BC_*/BR_* command codes, and the binary
// layouts exchanged across the device boundary. Struct layouts and opcode
// numbering follow the reference ABI; the ioctl control numbers are
// computed with the same _IOC formula the kernel header uses.
package uapi

// ioctl encoding, mirroring <asm-generic/ioctl.h>.
const (
	iocWrite     = 1
	iocRead      = 2
	iocSizeBits  = 14
	iocDirBits   = 2
	iocTypeBits  = 8
	iocNrBits    = 8
	iocNrShift   = 0
	iocTypeShift = iocNrShift + iocNrBits
	iocSizeShift = iocTypeShift + iocTypeBits
	iocDirShift  = iocSizeShift + iocSizeBits
)

// ioc computes an ioctl request number the way _IO/_IOR/_IOW/_IOWR do.
func ioc(dir, typ, nr, size uint32) uint32 {
	return (dir << iocDirShift) | (size << iocSizeShift) | (typ << iocTypeShift) | (nr << iocNrShift)
}

const (
	binderMagic = 'b'
	cmdMagic    = 'c' // binder_driver_command_protocol (BC_*)
	retMagic    = 'r' // binder_driver_return_protocol (BR_*)
)

const sizeofBinderWriteRead = 48 // 6 binder_size_t/binder_uintptr_t fields, see BinderWriteRead

// Control ioctls, one per Context device endpoint (spec.md §6).
var (
	BINDER_WRITE_READ                   = ioc(iocRead|iocWrite, binderMagic, 1, sizeofBinderWriteRead)
	BINDER_SET_MAX_THREADS              = ioc(iocWrite, binderMagic, 5, 4)
	BINDER_SET_CONTEXT_MGR              = ioc(iocWrite, binderMagic, 7, 4)
	BINDER_THREAD_EXIT                  = ioc(iocWrite, binderMagic, 8, 4)
	BINDER_VERSION                      = ioc(iocRead|iocWrite, binderMagic, 9, 4)
	BINDER_GET_NODE_DEBUG_INFO          = ioc(iocRead|iocWrite, binderMagic, 11, uint32(sizeofBinderNodeDebugInfo))
	BINDER_GET_NODE_INFO_FOR_REF        = ioc(iocRead|iocWrite, binderMagic, 12, uint32(sizeofBinderNodeInfoForRef))
	BINDER_SET_CONTEXT_MGR_EXT          = ioc(iocWrite, binderMagic, 13, uint32(sizeofFlatBinderObject))
	BINDER_ENABLE_ONEWAY_SPAM_DETECTION = ioc(iocWrite, binderMagic, 16, 4)
)

// BC_* command opcodes: written by userspace into the write stream of a
// BINDER_WRITE_READ call. nr ordering matches the reference ABI.
var (
	BC_TRANSACTION                 = ioc(iocWrite, cmdMagic, 0, uint32(sizeofBinderTransactionData))
	BC_REPLY                       = ioc(iocWrite, cmdMagic, 1, uint32(sizeofBinderTransactionData))
	BC_ACQUIRE_RESULT              = ioc(iocWrite, cmdMagic, 2, 4)
	BC_FREE_BUFFER                 = ioc(iocWrite, cmdMagic, 3, 8)
	BC_INCREFS                     = ioc(iocWrite, cmdMagic, 4, 4)
	BC_ACQUIRE                     = ioc(iocWrite, cmdMagic, 5, 4)
	BC_RELEASE                     = ioc(iocWrite, cmdMagic, 6, 4)
	BC_DECREFS                     = ioc(iocWrite, cmdMagic, 7, 4)
	BC_INCREFS_DONE                = ioc(iocWrite, cmdMagic, 8, 16)
	BC_ACQUIRE_DONE                = ioc(iocWrite, cmdMagic, 9, 16)
	BC_ATTEMPT_ACQUIRE             = ioc(iocWrite, cmdMagic, 10, 12)
	BC_REGISTER_LOOPER             = ioc(0, cmdMagic, 11, 0)
	BC_ENTER_LOOPER                = ioc(0, cmdMagic, 12, 0)
	BC_EXIT_LOOPER                 = ioc(0, cmdMagic, 13, 0)
	BC_REQUEST_DEATH_NOTIFICATION  = ioc(iocWrite, cmdMagic, 14, 12)
	BC_CLEAR_DEATH_NOTIFICATION    = ioc(iocWrite, cmdMagic, 15, 12)
	BC_DEAD_BINDER_DONE            = ioc(iocWrite, cmdMagic, 16, 8)
	BC_TRANSACTION_SG              = ioc(iocWrite, cmdMagic, 17, uint32(sizeofBinderTransactionDataSg))
	BC_REPLY_SG                    = ioc(iocWrite, cmdMagic, 18, uint32(sizeofBinderTransactionDataSg))
)

// BR_* return opcodes: written by the runtime into the read stream.
var (
	BR_ERROR                         = ioc(iocRead, retMagic, 0, 4)
	BR_OK                            = ioc(0, retMagic, 1, 0)
	BR_TRANSACTION                   = ioc(iocRead, retMagic, 2, uint32(sizeofBinderTransactionData))
	BR_REPLY                         = ioc(iocRead, retMagic, 3, uint32(sizeofBinderTransactionData))
	BR_ACQUIRE_RESULT                = ioc(iocRead, retMagic, 4, 4)
	BR_DEAD_REPLY                    = ioc(0, retMagic, 5, 0)
	BR_TRANSACTION_COMPLETE          = ioc(0, retMagic, 6, 0)
	BR_INCREFS                       = ioc(iocRead, retMagic, 7, 16)
	BR_ACQUIRE                       = ioc(iocRead, retMagic, 8, 16)
	BR_RELEASE                       = ioc(iocRead, retMagic, 9, 16)
	BR_DECREFS                       = ioc(iocRead, retMagic, 10, 16)
	BR_ATTEMPT_ACQUIRE               = ioc(iocRead, retMagic, 11, 20)
	BR_NOOP                          = ioc(0, retMagic, 12, 0)
	BR_SPAWN_LOOPER                  = ioc(0, retMagic, 13, 0)
	BR_FINISHED                      = ioc(0, retMagic, 14, 0)
	BR_DEAD_BINDER                   = ioc(iocRead, retMagic, 15, 8)
	BR_CLEAR_DEATH_NOTIFICATION_DONE = ioc(iocRead, retMagic, 16, 8)
	BR_FAILED_REPLY                  = ioc(0, retMagic, 17, 0)
	BR_TRANSACTION_SEC_CTX           = ioc(iocRead, retMagic, 18, uint32(sizeofBinderTransactionDataSecctx))
)

// Transaction flags (BinderTransactionData.Flags), reference bit positions.
const (
	TF_ONE_WAY          uint32 = 0x01
	TF_ROOT_OBJECT      uint32 = 0x04
	TF_STATUS_CODE      uint32 = 0x08
	TF_ACCEPT_FDS       uint32 = 0x10
	TF_CLEAR_BUF        uint32 = 0x20
	TF_TXN_SECURITY_CTX uint32 = 0x1000
)

// FlatBinderObject.Flags bits.
const (
	FLAT_BINDER_FLAG_PRIORITY_MASK  uint32 = 0xff
	FLAT_BINDER_FLAG_ACCEPTS_FDS    uint32 = 0x100
	FLAT_BINDER_FLAG_TXN_SECURITY_CTX uint32 = 0x1000
)

// FlatBinderObject.Type tags. Values are a simplified local enumeration
// (the reference ABI packs these as 4-character codes for driver
// debug-print purposes only; that packing carries no protocol meaning and
// is not reproduced here).
const (
	BINDER_TYPE_BINDER      uint32 = 0
	BINDER_TYPE_WEAK_BINDER uint32 = 1
	BINDER_TYPE_HANDLE      uint32 = 2
	BINDER_TYPE_WEAK_HANDLE uint32 = 3
	BINDER_TYPE_FD          uint32 = 4
)

// Device-wide limits.
const (
	MaxBufferArenaSize = 4 << 20 // 4 MiB, per spec.md §3 BufferArena
	MaxHandles         = 1<<32 - 1
)
