package parcel

import (
	"testing"

	"github.com/vela-os/binder/internal/status"
)

func TestPrimitiveRoundTrip(t *testing.T) {
	p := New()
	p.WriteInt32(-7)
	p.WriteUint32(42)
	p.WriteInt64(1 << 40)
	p.WriteBool(true)
	p.WriteByte(0xab)

	p.SetDataPosition(0)

	if v, s := p.ReadInt32(); s != status.OK || v != -7 {
		t.Fatalf("ReadInt32 = %d, %v", v, s)
	}
	if v, s := p.ReadUint32(); s != status.OK || v != 42 {
		t.Fatalf("ReadUint32 = %d, %v", v, s)
	}
	if v, s := p.ReadInt64(); s != status.OK || v != 1<<40 {
		t.Fatalf("ReadInt64 = %d, %v", v, s)
	}
	if v, s := p.ReadBool(); s != status.OK || !v {
		t.Fatalf("ReadBool = %v, %v", v, s)
	}
	if v, s := p.ReadByte(); s != status.OK || v != 0xab {
		t.Fatalf("ReadByte = %x, %v", v, s)
	}
}

func TestStringRoundTrip(t *testing.T) {
	p := New()
	p.WriteString("hello")
	p.WriteString("")

	p.SetDataPosition(0)
	if v, s := p.ReadString(); s != status.OK || v != "hello" {
		t.Fatalf("ReadString = %q, %v", v, s)
	}
	if v, s := p.ReadString(); s != status.OK || v != "" {
		t.Fatalf("ReadString empty = %q, %v", v, s)
	}
}

func TestCheckInterfaceMismatch(t *testing.T) {
	p := New()
	p.WriteInterfaceToken("vela.IFoo")
	p.SetDataPosition(0)

	if s := p.CheckInterface("vela.IBar"); s != status.BadType {
		t.Fatalf("CheckInterface mismatch = %v, want BadType", s)
	}
}

func TestReadPastEndIsNotEnoughData(t *testing.T) {
	p := New()
	p.WriteByte(1)
	p.SetDataPosition(0)
	p.ReadByte()

	if _, s := p.ReadInt32(); s != status.NotEnoughData {
		t.Fatalf("expected NotEnoughData, got %v", s)
	}
	if p.Error() != status.NotEnoughData {
		t.Fatalf("expected latched error NotEnoughData, got %v", p.Error())
	}
}

func TestStrongBinderNilRoundTrip(t *testing.T) {
	p := New()
	if s := p.WriteStrongBinder(nil); s != status.OK {
		t.Fatalf("WriteStrongBinder(nil) = %v", s)
	}
	p.SetDataPosition(0)
	b, s := p.ReadNullableStrongBinder()
	if s != status.OK || b != nil {
		t.Fatalf("ReadNullableStrongBinder = %v, %v, want nil, OK", b, s)
	}
}

func TestResetZeroesBuffer(t *testing.T) {
	p := New()
	p.WriteInt32(0x41414141)
	p.Reset()
	if p.DataSize() != 0 {
		t.Fatalf("DataSize after Reset = %d, want 0", p.DataSize())
	}
	if p.Error() != status.OK {
		t.Fatalf("Error after Reset = %v, want OK", p.Error())
	}
	if b := p.data[:4]; b[0] != 0 || b[1] != 0 || b[2] != 0 || b[3] != 0 {
		t.Fatalf("backing bytes after Reset = %v, want zeroes", b)
	}
}
