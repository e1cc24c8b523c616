package uapi

import "encoding/binary"

// MarshalError is a sentinel error type for malformed marshal input.
type MarshalError string

func (e MarshalError) Error() string { return string(e) }

const (
	ErrInsufficientData MarshalError = "insufficient data for unmarshaling"
	ErrInvalidType      MarshalError = "invalid type for marshaling"
)

// Marshal converts a struct to bytes using the driver's native little-endian
// wire layout.
func Marshal(v interface{}) []byte {
	switch val := v.(type) {
	case *BinderWriteRead:
		return marshalWriteRead(val)
	case *FlatBinderObject:
		return marshalFlatObject(val)
	case *BinderTransactionData:
		return marshalTransactionData(val)
	case *BinderVersionStruct:
		return marshalVersion(val)
	default:
		return nil
	}
}

// Unmarshal converts bytes back to a struct.
func Unmarshal(data []byte, v interface{}) error {
	switch val := v.(type) {
	case *BinderWriteRead:
		return unmarshalWriteRead(data, val)
	case *FlatBinderObject:
		return unmarshalFlatObject(data, val)
	case *BinderTransactionData:
		return unmarshalTransactionData(data, val)
	case *BinderVersionStruct:
		return unmarshalVersion(data, val)
	default:
		return ErrInvalidType
	}
}

func marshalWriteRead(v *BinderWriteRead) []byte {
	buf := make([]byte, 48)
	binary.LittleEndian.PutUint64(buf[0:8], v.WriteSize)
	binary.LittleEndian.PutUint64(buf[8:16], v.WriteConsumed)
	binary.LittleEndian.PutUint64(buf[16:24], v.WriteBuffer)
	binary.LittleEndian.PutUint64(buf[24:32], v.ReadSize)
	binary.LittleEndian.PutUint64(buf[32:40], v.ReadConsumed)
	binary.LittleEndian.PutUint64(buf[40:48], v.ReadBuffer)
	return buf
}

func unmarshalWriteRead(data []byte, v *BinderWriteRead) error {
	if len(data) < 48 {
		return ErrInsufficientData
	}
	v.WriteSize = binary.LittleEndian.Uint64(data[0:8])
	v.WriteConsumed = binary.LittleEndian.Uint64(data[8:16])
	v.WriteBuffer = binary.LittleEndian.Uint64(data[16:24])
	v.ReadSize = binary.LittleEndian.Uint64(data[24:32])
	v.ReadConsumed = binary.LittleEndian.Uint64(data[32:40])
	v.ReadBuffer = binary.LittleEndian.Uint64(data[40:48])
	return nil
}

func marshalFlatObject(v *FlatBinderObject) []byte {
	buf := make([]byte, 24)
	binary.LittleEndian.PutUint32(buf[0:4], v.Type)
	binary.LittleEndian.PutUint32(buf[4:8], v.Flags)
	binary.LittleEndian.PutUint64(buf[8:16], v.Binder)
	binary.LittleEndian.PutUint64(buf[16:24], v.Cookie)
	return buf
}

func unmarshalFlatObject(data []byte, v *FlatBinderObject) error {
	if len(data) < 24 {
		return ErrInsufficientData
	}
	v.Type = binary.LittleEndian.Uint32(data[0:4])
	v.Flags = binary.LittleEndian.Uint32(data[4:8])
	v.Binder = binary.LittleEndian.Uint64(data[8:16])
	v.Cookie = binary.LittleEndian.Uint64(data[16:24])
	return nil
}

func marshalTransactionData(v *BinderTransactionData) []byte {
	buf := make([]byte, 64)
	binary.LittleEndian.PutUint64(buf[0:8], v.Target)
	binary.LittleEndian.PutUint64(buf[8:16], v.Cookie)
	binary.LittleEndian.PutUint32(buf[16:20], v.Code)
	binary.LittleEndian.PutUint32(buf[20:24], v.Flags)
	binary.LittleEndian.PutUint32(buf[24:28], uint32(v.SenderPID))
	binary.LittleEndian.PutUint32(buf[28:32], v.SenderEUID)
	binary.LittleEndian.PutUint64(buf[32:40], v.DataSize)
	binary.LittleEndian.PutUint64(buf[40:48], v.OffsetsSize)
	binary.LittleEndian.PutUint64(buf[48:56], v.PtrBuffer)
	binary.LittleEndian.PutUint64(buf[56:64], v.PtrOffsets)
	return buf
}

func unmarshalTransactionData(data []byte, v *BinderTransactionData) error {
	if len(data) < 64 {
		return ErrInsufficientData
	}
	v.Target = binary.LittleEndian.Uint64(data[0:8])
	v.Cookie = binary.LittleEndian.Uint64(data[8:16])
	v.Code = binary.LittleEndian.Uint32(data[16:20])
	v.Flags = binary.LittleEndian.Uint32(data[20:24])
	v.SenderPID = int32(binary.LittleEndian.Uint32(data[24:28]))
	v.SenderEUID = binary.LittleEndian.Uint32(data[28:32])
	v.DataSize = binary.LittleEndian.Uint64(data[32:40])
	v.OffsetsSize = binary.LittleEndian.Uint64(data[40:48])
	v.PtrBuffer = binary.LittleEndian.Uint64(data[48:56])
	v.PtrOffsets = binary.LittleEndian.Uint64(data[56:64])
	return nil
}

func marshalVersion(v *BinderVersionStruct) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(v.ProtocolVersion))
	return buf
}

func unmarshalVersion(data []byte, v *BinderVersionStruct) error {
	if len(data) < 8 {
		return ErrInsufficientData
	}
	v.ProtocolVersion = int32(binary.LittleEndian.Uint32(data[0:4]))
	return nil
}
