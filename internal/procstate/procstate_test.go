package procstate

import (
	"testing"

	"github.com/vela-os/binder/internal/driver"
	"github.com/vela-os/binder/internal/ibinder"
	"github.com/vela-os/binder/internal/status"
	"github.com/vela-os/binder/internal/uapi"
)

type stubBinder struct {
	ibinder.Binder
	handle uint32
}

func TestGetStrongProxyForHandleCachesAndFactors(t *testing.T) {
	fake := driver.NewFake(uapi.BinderCurrentProtocolVersion)
	s, err := InitWithDriver(fake)
	if err != nil {
		t.Fatalf("InitWithDriver: %v", err)
	}

	calls := 0
	RegisterProxyFactory(func(handle uint32) ibinder.Binder {
		calls++
		return &stubBinder{handle: handle}
	})

	b1, st := s.GetStrongProxyForHandle(7)
	if st != status.OK {
		t.Fatalf("GetStrongProxyForHandle: %v", st)
	}
	b2, st := s.GetStrongProxyForHandle(7)
	if st != status.OK {
		t.Fatalf("GetStrongProxyForHandle: %v", st)
	}
	if b1 != b2 {
		t.Fatalf("expected cached proxy to be reused")
	}
	if calls != 1 {
		t.Fatalf("factory called %d times, want 1", calls)
	}

	s.ExpungeHandle(7, b1)
	if _, ok := s.handles[7]; ok {
		t.Fatalf("expected handle 7 to be expunged")
	}
}

func TestDescriptorCache(t *testing.T) {
	fake := driver.NewFake(uapi.BinderCurrentProtocolVersion)
	s, err := NewForTesting(fake)
	if err != nil {
		t.Fatalf("NewForTesting: %v", err)
	}

	if _, ok := s.LookupDescriptor(3); ok {
		t.Fatal("expected no cached descriptor before CacheDescriptor")
	}

	s.CacheDescriptor(3, "vela.IEcho")
	got, ok := s.LookupDescriptor(3)
	if !ok || got != "vela.IEcho" {
		t.Fatalf("LookupDescriptor(3) = (%q, %v), want (vela.IEcho, true)", got, ok)
	}

	RegisterProxyFactory(func(handle uint32) ibinder.Binder {
		return &stubBinder{handle: handle}
	})
	b, _ := s.GetStrongProxyForHandle(3)
	s.ExpungeHandle(3, b)
	if _, ok := s.LookupDescriptor(3); ok {
		t.Fatal("expected descriptor cache entry to be evicted on ExpungeHandle")
	}
}

func TestBecomeContextManager(t *testing.T) {
	fake := driver.NewFake(uapi.BinderCurrentProtocolVersion)
	s := &State{conn: fake, handles: make(map[uint32]ibinder.Binder)}

	if st := s.BecomeContextManager("vela.IServiceManager"); st != status.OK {
		t.Fatalf("BecomeContextManager: %v", st)
	}
	if !s.IsContextManager() {
		t.Fatal("expected IsContextManager() to be true")
	}
}
