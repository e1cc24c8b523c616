package driver

import "testing"

func TestFakeConnWriteReadFIFO(t *testing.T) {
	f := NewFake(8)
	f.QueueRead([]byte{1, 2, 3})
	f.QueueRead([]byte{4, 5})

	buf := make([]byte, 4)
	_, n, err := f.WriteRead(nil, buf)
	if err != nil {
		t.Fatalf("WriteRead: %v", err)
	}
	if n != 4 {
		t.Fatalf("produced = %d, want 4", n)
	}
	if buf[0] != 1 || buf[3] != 4 {
		t.Fatalf("unexpected bytes: %v", buf)
	}

	buf2 := make([]byte, 4)
	_, n2, _ := f.WriteRead(nil, buf2)
	if n2 != 1 || buf2[0] != 5 {
		t.Fatalf("second read = %d bytes %v, want 1 byte [5]", n2, buf2)
	}
}

func TestFakeConnRecordsWrites(t *testing.T) {
	f := NewFake(8)
	f.WriteRead([]byte{9, 9}, make([]byte, 0))
	got := f.Written()
	if len(got) != 1 || got[0][0] != 9 {
		t.Fatalf("Written() = %v", got)
	}
}

func TestFakeConnVersion(t *testing.T) {
	f := NewFake(8)
	v, err := f.Version()
	if err != nil || v != 8 {
		t.Fatalf("Version() = %d, %v, want 8, nil", v, err)
	}
}
