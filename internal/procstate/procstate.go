// Package procstate holds the process-wide binder state: the open driver
// connection, the mmap'd receive buffer, the handle-to-proxy cache, and the
// thread pool knobs. There is exactly one State per process, reached through
// Self.
package procstate

import (
	"fmt"
	"os"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/vela-os/binder/internal/constants"
	"github.com/vela-os/binder/internal/driver"
	"github.com/vela-os/binder/internal/ibinder"
	"github.com/vela-os/binder/internal/logging"
	"github.com/vela-os/binder/internal/status"
	"github.com/vela-os/binder/internal/uapi"
)

// descriptorCacheSize bounds the per-process cache of resolved interface
// descriptors. Handles churn as processes come and go, so this stays a
// bounded LRU instead of a map that only grows.
const descriptorCacheSize = 256

// CallRestriction bounds which calls a thread may make while inside a
// transaction, mirroring ProcessState::CallRestriction.
type CallRestriction int

const (
	CallRestrictionNone CallRestriction = iota
	CallRestrictionErrorIfNotOneway
	CallRestrictionFatalIfNotOneway
)

// proxyFactory builds an ibinder.Binder for a remote handle. internal/proxy
// registers its constructor here via RegisterProxyFactory during its init,
// which keeps procstate from importing proxy (proxy already imports
// procstate to reach the driver connection).
var proxyFactory func(handle uint32) ibinder.Binder

// RegisterProxyFactory installs the function State uses to mint a proxy
// object for a handle it hasn't seen before. Calling it twice replaces the
// previous factory; production code calls it once, from an init function.
func RegisterProxyFactory(fn func(handle uint32) ibinder.Binder) {
	proxyFactory = fn
}

// publishedService records a name this process registered with the service
// manager, so Shutdown can try to withdraw it.
type publishedService struct {
	name   string
	binder ibinder.Binder
}

// State is the process-wide binder runtime state.
type State struct {
	mu             sync.Mutex
	conn           driver.Conn
	mmapRegion     []byte
	handles        map[uint32]ibinder.Binder
	maxThreads     uint32
	spawnedThreads int
	restriction    CallRestriction
	isContextMgr   bool
	logger         *logging.Logger
	descriptors    *lru.Cache[uint32, string]
	published      []publishedService
}

// unpublishHook withdraws one published service from the directory.
// servicemanager installs this via RegisterUnpublishHook during its init,
// the same factory-registration trick RegisterProxyFactory uses to avoid
// procstate importing servicemanager (which itself imports procstate).
var unpublishHook func(s *State, name string, binder ibinder.Binder)

// RegisterUnpublishHook installs the function Shutdown calls for each
// service this process published, to try to remove it from the directory
// before the driver connection closes.
func RegisterUnpublishHook(fn func(s *State, name string, binder ibinder.Binder)) {
	unpublishHook = fn
}

var (
	once     sync.Once
	instance *State
	initErr  error
)

// Self returns the process-wide State, opening the default driver path on
// first use.
func Self() (*State, error) {
	once.Do(func() {
		instance, initErr = newState(nil)
	})
	return instance, initErr
}

// InitWithDriver installs a specific driver.Conn (typically a driver.FakeConn
// in tests) as the process state, bypassing the default /dev/binder open.
// It must be called before the first Self() call.
func InitWithDriver(conn driver.Conn) (*State, error) {
	var err error
	once.Do(func() {
		instance, err = newState(conn)
		initErr = err
	})
	return instance, initErr
}

// NewForTesting builds a standalone State bound to conn without touching
// the process-wide singleton, so unrelated tests can each get an isolated
// instance instead of racing over the first InitWithDriver call.
func NewForTesting(conn driver.Conn) (*State, error) {
	return newState(conn)
}

func newState(conn driver.Conn) (*State, error) {
	logger := logging.Default()
	if conn == nil {
		path := os.Getenv(constants.EnvDriverPath)
		if path == "" {
			path = constants.DefaultDriverPath
		}
		c, err := driver.Open(driver.Config{Path: path})
		if err != nil {
			return nil, fmt.Errorf("procstate: %w", err)
		}
		conn = c
	}

	version, err := conn.Version()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("procstate: BINDER_VERSION: %w", err)
	}
	if version != uapi.BinderCurrentProtocolVersion {
		logger.Warn("binder protocol version mismatch", "got", version, "want", uapi.BinderCurrentProtocolVersion)
	}

	if err := conn.SetMaxThreads(constants.DefaultMaxThreads); err != nil {
		conn.Close()
		return nil, fmt.Errorf("procstate: BINDER_SET_MAX_THREADS: %w", err)
	}

	region, err := conn.Mmap(constants.DefaultMmapSize)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("procstate: mmap: %w", err)
	}

	descriptors, err := lru.New[uint32, string](descriptorCacheSize)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("procstate: descriptor cache: %w", err)
	}

	s := &State{
		conn:        conn,
		mmapRegion:  region,
		handles:     make(map[uint32]ibinder.Binder),
		maxThreads:  constants.DefaultMaxThreads,
		logger:      logger,
		descriptors: descriptors,
	}
	return s, nil
}

// Conn exposes the driver connection to internal/threadstate.
func (s *State) Conn() driver.Conn { return s.conn }

// GetContextObject returns the well-known service-manager proxy at
// ContextManagerHandle.
func (s *State) GetContextObject() (ibinder.Binder, status.Status) {
	return s.GetStrongProxyForHandle(constants.ContextManagerHandle)
}

// GetStrongProxyForHandle returns the cached proxy for handle, minting one
// through the registered proxy factory the first time the handle is seen.
// Handle 0 (the context manager) additionally gets pinged right after
// minting, forcing the driver to register it before anyone transacts with
// it; a dead ping means there is no context manager yet, so the freshly
// minted proxy is discarded instead of cached.
func (s *State) GetStrongProxyForHandle(handle uint32) (ibinder.Binder, status.Status) {
	s.mu.Lock()
	if b, ok := s.handles[handle]; ok {
		s.mu.Unlock()
		return b, status.OK
	}
	if proxyFactory == nil {
		s.mu.Unlock()
		return nil, status.NoInit
	}
	b := proxyFactory(handle)
	s.mu.Unlock()

	if handle == constants.ContextManagerHandle {
		if st := b.PingBinder(); st == status.DeadObject {
			return nil, status.DeadObject
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.handles[handle]; ok {
		return existing, status.OK
	}
	s.handles[handle] = b
	return b, status.OK
}

// ExpungeHandle removes handle from the cache if it still maps to binder,
// called once a proxy's last strong reference drops so a later lookup mints
// a fresh one instead of reusing a dead object.
func (s *State) ExpungeHandle(handle uint32, binder ibinder.Binder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.handles[handle]; ok && cur == binder {
		delete(s.handles, handle)
		if s.descriptors != nil {
			s.descriptors.Remove(handle)
		}
	}
}

// CacheDescriptor remembers the interface descriptor resolved for handle, so
// a second proxy minted for the same handle (after the first was expunged
// and re-resolved) skips the round trip. A State built by directly
// populating the struct (as some tests do) carries no cache and silently
// skips caching rather than panicking.
func (s *State) CacheDescriptor(handle uint32, descriptor string) {
	if s.descriptors != nil {
		s.descriptors.Add(handle, descriptor)
	}
}

// LookupDescriptor returns a previously cached descriptor for handle, if any.
func (s *State) LookupDescriptor(handle uint32) (string, bool) {
	if s.descriptors == nil {
		return "", false
	}
	return s.descriptors.Get(handle)
}

// BecomeContextManager registers this process as the service manager. A
// non-empty descriptor selects BINDER_SET_CONTEXT_MGR_EXT with a bare
// BinderTypeBinder flat object; the descriptor string is not sent.
func (s *State) BecomeContextManager(descriptor string) status.Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	var obj *uapi.FlatBinderObject
	if descriptor != "" {
		obj = &uapi.FlatBinderObject{Type: uapi.BinderTypeBinder}
	}
	if err := s.conn.SetContextMgr(obj); err != nil {
		return status.PermissionDenied
	}
	s.isContextMgr = true
	return status.OK
}

// IsContextManager reports whether BecomeContextManager succeeded earlier in
// this process.
func (s *State) IsContextManager() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isContextMgr
}

// SetThreadPoolMaxThreadCount announces a new thread-pool ceiling to the
// driver via BINDER_SET_MAX_THREADS.
func (s *State) SetThreadPoolMaxThreadCount(n uint32) status.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.SetMaxThreads(n); err != nil {
		return status.UnknownError
	}
	s.maxThreads = n
	return status.OK
}

// SetCallRestriction bounds what kind of calls a thread inside this process
// may make while servicing an incoming transaction.
func (s *State) SetCallRestriction(mode CallRestriction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restriction = mode
}

// CallRestriction returns the currently configured restriction.
func (s *State) CallRestriction() CallRestriction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restriction
}

// RegisterThreadSpawner installs the function used by StartThreadPool to
// launch one more pool thread. internal/threadstate calls this from its
// init, mirroring RegisterProxyFactory.
func RegisterThreadSpawner(fn func(s *State)) {
	spawnPoolThreadDefault = fn
}

var spawnPoolThreadDefault func(s *State)

// StartThreadPool starts one pool thread: a goroutine running the spawner
// internal/threadstate registers, which joins the pool as a non-main looper
// (BC_REGISTER_LOOPER). The calling thread is not marked as a looper, and
// every call starts one more goroutine.
func (s *State) StartThreadPool() status.Status {
	s.mu.Lock()
	spawn := spawnPoolThreadDefault
	s.spawnedThreads++
	s.mu.Unlock()

	if spawn == nil {
		return status.NoInit
	}
	go spawn(s)
	return status.OK
}

// MmapRegion exposes the mapped receive buffer, read-only, to
// internal/threadstate for resolving transaction-data pointers the driver
// wrote into it.
func (s *State) MmapRegion() []byte {
	return s.mmapRegion
}

// TrackPublishedService records that this process registered name with the
// service manager, so Shutdown can try to withdraw it. Callers that never
// publish anything (pure clients) never populate this list.
func (s *State) TrackPublishedService(name string, binder ibinder.Binder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published = append(s.published, publishedService{name: name, binder: binder})
}

// Shutdown withdraws every service this process published, then releases
// the driver connection and its mapping. cmd/svcmanager calls it on exit; a
// process that never calls it keeps both until the OS tears it down.
func (s *State) Shutdown() error {
	s.mu.Lock()
	published := s.published
	s.published = nil
	hook := unpublishHook
	s.mu.Unlock()

	if hook != nil {
		for _, p := range published {
			hook(s, p.name, p.binder)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mmapRegion != nil {
		s.conn.Munmap(s.mmapRegion)
		s.mmapRegion = nil
	}
	return s.conn.Close()
}
