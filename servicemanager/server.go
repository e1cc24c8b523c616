package servicemanager

import (
	"hash/fnv"
	"regexp"
	"sync"

	"github.com/google/uuid"

	"github.com/vela-os/binder/internal/constants"
	"github.com/vela-os/binder/internal/ibinder"
	"github.com/vela-os/binder/internal/localbinder"
	"github.com/vela-os/binder/internal/parcel"
	"github.com/vela-os/binder/internal/status"
)

// nameShards bounds the concurrent map's shard count. Lookups hash the
// service name to a shard and lock only that shard, the way the teacher's
// memory backend shards by offset rather than taking one global mutex.
const nameShards = 16

var validName = regexp.MustCompile(`^[A-Za-z0-9._/-]{1,127}$`)

type serviceEntry struct {
	binder         ibinder.Binder
	allowIsolated  bool
	dumpPriority   int32
	debugPID       int32
	registrationID uuid.UUID
	watcher        *deathWatcher
}

type nameShard struct {
	mu       sync.Mutex
	services map[string]*serviceEntry
	pending  map[string][]ibinder.Binder // callbacks awaiting a registerForNotifications match
}

// Server is the in-process service-manager implementation: the object the
// process that calls BecomeContextManager installs at handle 0.
type Server struct {
	*localbinder.Base

	shards [nameShards]*nameShard
}

// NewServer builds a Server, already wrapped in its own localbinder.Base,
// ready to be installed as the context manager.
func NewServer() *Server {
	s := &Server{}
	for i := range s.shards {
		s.shards[i] = &nameShard{
			services: make(map[string]*serviceEntry),
			pending:  make(map[string][]ibinder.Binder),
		}
	}
	s.Base = localbinder.New(s)
	return s
}

// Descriptor identifies this object as the well-known service manager.
func (s *Server) Descriptor() string { return constants.ServiceManagerDescriptor }

func (s *Server) shardFor(name string) *nameShard {
	h := fnv.New32a()
	h.Write([]byte(name))
	return s.shards[h.Sum32()%nameShards]
}

// Dispatch implements localbinder.Interface, decoding each IServiceManager
// wire call and running it against the directory.
func (s *Server) Dispatch(code uint32, data ibinder.Parcel, reply ibinder.Parcel, flags ibinder.TransactionFlags) status.Status {
	in, ok := data.(*parcel.Parcel)
	if !ok {
		return status.BadValue
	}
	out, _ := reply.(*parcel.Parcel)

	switch code {
	case txGetService:
		return s.handleGetService(in, out)
	case txCheckService:
		return s.handleGetService(in, out) // identical lookup, no blocking semantics at this layer
	case txAddService:
		return s.handleAddService(in, out)
	case txListServices:
		return s.handleListServices(in, out)
	case txRegisterForNotifications:
		return s.handleRegisterForNotifications(in, out)
	case txUnregisterForNotifications:
		return s.handleUnregisterForNotifications(in, out)
	case txIsDeclared:
		return s.handleIsDeclared(in, out)
	case txGetDeclaredInstances:
		return s.handleGetDeclaredInstances(in, out)
	case txRegisterClientCallback:
		return status.OK // no client-death tracking beyond the service's own death watcher
	case txTryUnregisterService:
		return s.handleTryUnregisterService(in, out)
	case txGetServiceDebugInfo:
		return s.handleGetServiceDebugInfo(out)
	default:
		return status.UnknownTransaction
	}
}

func (s *Server) handleGetService(in, out *parcel.Parcel) status.Status {
	name, st := in.ReadString()
	if st != status.OK {
		return st
	}
	shard := s.shardFor(name)
	shard.mu.Lock()
	entry := shard.services[name]
	shard.mu.Unlock()

	if entry == nil {
		return out.WriteStrongBinder(nil)
	}
	return out.WriteStrongBinder(entry.binder)
}

// handleAddService decodes addService's arguments (name, binder,
// allowIsolated, dumpPriority) in the order Client.AddService writes them.
func (s *Server) handleAddService(in, out *parcel.Parcel) status.Status {
	name, st := in.ReadString()
	if st != status.OK {
		return st
	}
	binder, st := in.ReadNullableStrongBinder()
	if st != status.OK {
		return st
	}
	allowIsolated, st := in.ReadBool()
	if st != status.OK {
		return st
	}
	dumpPriority, st := in.ReadInt32()
	if st != status.OK {
		return st
	}

	if !validName.MatchString(name) {
		return status.BadValue
	}
	if binder == nil {
		return status.UnexpectedNull
	}

	entry := &serviceEntry{
		binder:         binder,
		allowIsolated:  allowIsolated,
		dumpPriority:   dumpPriority,
		debugPID:       0,
		registrationID: uuid.New(),
	}

	shard := s.shardFor(name)
	shard.mu.Lock()
	if old := shard.services[name]; old != nil && old.watcher != nil {
		if rb := old.binder.RemoteBinder(); rb != nil {
			rb.UnlinkToDeath(old.watcher, nil, 0)
		}
	}
	if rb := binder.RemoteBinder(); rb != nil {
		w := &deathWatcher{server: s, name: name}
		entry.watcher = w
		rb.LinkToDeath(w, nil, 0)
	}
	shard.services[name] = entry
	callbacks := shard.pending[name]
	delete(shard.pending, name)
	shard.mu.Unlock()

	for _, cb := range callbacks {
		notifyRegistration(cb, name, binder)
	}

	return status.OK
}

func (s *Server) handleListServices(in, out *parcel.Parcel) status.Status {
	if _, st := in.ReadInt32(); st != status.OK { // dumpPriority, unused for filtering here
		return st
	}
	var names []string
	for _, shard := range s.shards {
		shard.mu.Lock()
		for name := range shard.services {
			names = append(names, name)
		}
		shard.mu.Unlock()
	}
	if st := out.WriteInt32(int32(len(names))); st != status.OK {
		return st
	}
	for _, n := range names {
		if st := out.WriteString(n); st != status.OK {
			return st
		}
	}
	return status.OK
}

func (s *Server) handleRegisterForNotifications(in, out *parcel.Parcel) status.Status {
	name, st := in.ReadString()
	if st != status.OK {
		return st
	}
	cb, st := in.ReadNullableStrongBinder()
	if st != status.OK {
		return st
	}
	if cb == nil {
		return status.UnexpectedNull
	}
	if !validName.MatchString(name) {
		return status.BadValue
	}

	shard := s.shardFor(name)
	shard.mu.Lock()
	entry := shard.services[name]
	if entry == nil {
		shard.pending[name] = append(shard.pending[name], cb)
	}
	shard.mu.Unlock()

	if entry != nil {
		notifyRegistration(cb, name, entry.binder)
	}
	return status.OK
}

func (s *Server) handleUnregisterForNotifications(in, out *parcel.Parcel) status.Status {
	name, st := in.ReadString()
	if st != status.OK {
		return st
	}
	cb, st := in.ReadNullableStrongBinder()
	if st != status.OK {
		return st
	}
	shard := s.shardFor(name)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	list := shard.pending[name]
	for i, c := range list {
		if c == cb {
			shard.pending[name] = append(list[:i], list[i+1:]...)
			return status.OK
		}
	}
	return status.NameNotFound
}

func (s *Server) handleIsDeclared(in, out *parcel.Parcel) status.Status {
	name, st := in.ReadString()
	if st != status.OK {
		return st
	}
	shard := s.shardFor(name)
	shard.mu.Lock()
	_, ok := shard.services[name]
	shard.mu.Unlock()
	return out.WriteBool(ok)
}

func (s *Server) handleGetDeclaredInstances(in, out *parcel.Parcel) status.Status {
	iface, st := in.ReadString()
	if st != status.OK {
		return st
	}
	var names []string
	for _, shard := range s.shards {
		shard.mu.Lock()
		for name, entry := range shard.services {
			if entry.binder.Descriptor() == iface {
				names = append(names, name)
			}
		}
		shard.mu.Unlock()
	}
	if st := out.WriteInt32(int32(len(names))); st != status.OK {
		return st
	}
	for _, n := range names {
		if st := out.WriteString(n); st != status.OK {
			return st
		}
	}
	return status.OK
}

func (s *Server) handleTryUnregisterService(in, out *parcel.Parcel) status.Status {
	name, st := in.ReadString()
	if st != status.OK {
		return st
	}
	binder, st := in.ReadNullableStrongBinder()
	if st != status.OK {
		return st
	}
	shard := s.shardFor(name)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	entry, ok := shard.services[name]
	if !ok || entry.binder != binder {
		return out.WriteBool(false)
	}
	if entry.watcher != nil {
		if rb := entry.binder.RemoteBinder(); rb != nil {
			rb.UnlinkToDeath(entry.watcher, nil, 0)
		}
	}
	delete(shard.services, name)
	return out.WriteBool(true)
}

func (s *Server) handleGetServiceDebugInfo(out *parcel.Parcel) status.Status {
	var infos []ServiceDebugInfo
	for _, shard := range s.shards {
		shard.mu.Lock()
		for name, entry := range shard.services {
			infos = append(infos, ServiceDebugInfo{
				Name:           name,
				PID:            entry.debugPID,
				RegistrationID: entry.registrationID.String(),
			})
		}
		shard.mu.Unlock()
	}
	if st := out.WriteInt32(int32(len(infos))); st != status.OK {
		return st
	}
	for _, info := range infos {
		if st := out.WriteString(info.Name); st != status.OK {
			return st
		}
		if st := out.WriteInt32(info.PID); st != status.OK {
			return st
		}
		if st := out.WriteString(info.RegistrationID); st != status.OK {
			return st
		}
	}
	return status.OK
}

// removeByWatcher drops name's entry if it is still owned by w, called when
// a registered service's process dies.
func (s *Server) removeByWatcher(name string, w *deathWatcher) {
	shard := s.shardFor(name)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	if entry, ok := shard.services[name]; ok && entry.watcher == w {
		delete(shard.services, name)
	}
}

// deathWatcher removes a service's directory entry when its process exits,
// so a later getService fails fast instead of returning a dead handle.
type deathWatcher struct {
	server *Server
	name   string
}

func (w *deathWatcher) BinderDied(ibinder.RemoteBinder) {
	w.server.removeByWatcher(w.name, w)
}

// notifyRegistration fires cb's PingBinder-equivalent callback. A registered
// notification callback is itself a small local object implementing a
// single-method interface; lacking the generated stub here, the server calls
// it with the reserved FirstCallTransaction code carrying (name, binder).
func notifyRegistration(cb ibinder.Binder, name string, binder ibinder.Binder) {
	req := parcel.New()
	req.WriteString(name)
	req.WriteStrongBinder(binder)
	cb.Transact(ibinder.FirstCallTransaction, req, nil, ibinder.FlagOneway)
}

var _ localbinder.Interface = (*Server)(nil)
