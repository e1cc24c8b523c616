package uapi

import "unsafe"

// BinderWriteRead mirrors struct binder_write_read exactly (48 bytes):
//
//	struct binder_write_read {
//	  binder_size_t write_size;
//	  binder_size_t write_consumed;
//	  binder_uintptr_t write_buffer;
//	  binder_size_t read_size;
//	  binder_size_t read_consumed;
//	  binder_uintptr_t read_buffer;
//	};
type BinderWriteRead struct {
	WriteSize     uint64
	WriteConsumed uint64
	WriteBuffer   uint64
	ReadSize      uint64
	ReadConsumed  uint64
	ReadBuffer    uint64
}

var _ [48]byte = [unsafe.Sizeof(BinderWriteRead{})]byte{}

// FlatBinderObject mirrors struct flat_binder_object (24 bytes). Binder
// aliases the same 8 bytes the kernel union occupies; callers set only the
// member that matches Type, using Handle/SetHandle for the handle variant.
//
//	struct flat_binder_object {
//	  __u32 type;
//	  __u32 flags;
//	  union { binder_uintptr_t binder; __u32 handle; };
//	  binder_uintptr_t cookie;
//	};
type FlatBinderObject struct {
	Type   uint32
	Flags  uint32
	Binder uint64 // local object pointer token when Type is BinderTypeBinder/WeakBinder
	Cookie uint64
}

var _ [24]byte = [unsafe.Sizeof(FlatBinderObject{})]byte{}

// Handle reads the union's handle member for BinderTypeHandle/WeakHandle
// objects, where only the low 32 bits of Binder are meaningful.
func (f *FlatBinderObject) Handle() uint32 { return uint32(f.Binder) }

// SetHandle writes the union's handle member.
func (f *FlatBinderObject) SetHandle(h uint32) { f.Binder = uint64(h) }

// BinderTransactionData mirrors struct binder_transaction_data (64 bytes).
// Target aliases the kernel's target.handle/target.ptr union; PtrBuffer and
// PtrOffsets alias the data.ptr.buffer/offsets union member (the inline
// data.buf[8] form is never produced by this runtime).
//
//	struct binder_transaction_data {
//	  union { __u32 handle; binder_uintptr_t ptr; } target;
//	  binder_uintptr_t cookie;
//	  __u32 code;
//	  __u32 flags;
//	  pid_t sender_pid;
//	  uid_t sender_euid;
//	  binder_size_t data_size;
//	  binder_size_t offsets_size;
//	  union { struct { binder_uintptr_t buffer; binder_uintptr_t offsets; } ptr; __u8 buf[8]; } data;
//	};
type BinderTransactionData struct {
	Target      uint64
	Cookie      uint64
	Code        uint32
	Flags       uint32
	SenderPID   int32
	SenderEUID  uint32
	DataSize    uint64
	OffsetsSize uint64
	PtrBuffer   uint64
	PtrOffsets  uint64
}

var _ [64]byte = [unsafe.Sizeof(BinderTransactionData{})]byte{}

// TargetHandle reads Target as a handle number (target.handle).
func (t *BinderTransactionData) TargetHandle() uint32 { return uint32(t.Target) }

// SetTargetHandle writes Target as a handle number.
func (t *BinderTransactionData) SetTargetHandle(h uint32) { t.Target = uint64(h) }

// BinderVersionStruct mirrors struct binder_version, whose only field is an
// int32 protocol version (CmdVersion encodes a 4-byte argument); the
// trailing int32 pads this Go struct to 8 bytes.
type BinderVersionStruct struct {
	ProtocolVersion int32
	_               int32
}

var _ [8]byte = [unsafe.Sizeof(BinderVersionStruct{})]byte{}
