package servicemanager

import (
	"sync"
	"time"

	"github.com/vela-os/binder/internal/ibinder"
	"github.com/vela-os/binder/internal/parcel"
	"github.com/vela-os/binder/internal/procstate"
	"github.com/vela-os/binder/internal/status"
)

// getServiceRetryInterval and getServiceRetryDeadline bound GetService's
// checkService polling loop, per spec.md §4.7's "100ms backoff up to 5s".
const (
	getServiceRetryInterval = 100 * time.Millisecond
	getServiceRetryDeadline = 5 * time.Second
)

// Client wraps the raw handle-0 proxy with the typed operations every
// process uses to publish and locate services.
type Client struct {
	remote ibinder.Binder
}

// Default resolves the well-known context-manager object for the calling
// process and wraps it as a Client.
func Default() (*Client, status.Status) {
	proc, err := procstate.Self()
	if err != nil {
		return nil, status.NoInit
	}
	obj, st := proc.GetContextObject()
	if st != status.OK {
		return nil, st
	}
	return New(obj), status.OK
}

// New wraps an already-resolved handle-0 object as a Client, mainly for
// tests that substitute a servicemanager.Server directly instead of going
// through a driver round trip.
func New(remote ibinder.Binder) *Client {
	return &Client{remote: remote}
}

func (c *Client) call(code uint32, req *parcel.Parcel) (*parcel.Parcel, status.Status) {
	reply := parcel.New()
	if st := c.remote.Transact(code, req, reply, 0); st != status.OK {
		return nil, st
	}
	reply.SetDataPosition(0)
	return reply, status.OK
}

// CheckService looks up name and returns immediately, nil if not found.
func (c *Client) CheckService(name string) (ibinder.Binder, status.Status) {
	req := parcel.New()
	req.WriteString(name)
	reply, st := c.call(txCheckService, req)
	if st != status.OK {
		return nil, st
	}
	return reply.ReadNullableStrongBinder()
}

// GetService retries CheckService with a fixed backoff for up to five
// seconds before giving up and returning nil, matching the blocking
// convenience the generated client wrapper provides on top of the raw
// non-blocking transaction.
func (c *Client) GetService(name string) (ibinder.Binder, status.Status) {
	deadline := time.Now().Add(getServiceRetryDeadline)
	for {
		obj, st := c.CheckService(name)
		if st != status.OK {
			return nil, st
		}
		if obj != nil {
			return obj, status.OK
		}
		if time.Now().After(deadline) {
			return nil, status.OK
		}
		time.Sleep(getServiceRetryInterval)
	}
}

// AddService publishes binder under name. On success, if procstate.Self()
// can open the process's driver connection, the registration is tracked so
// procstate.State.Shutdown can withdraw it automatically.
func (c *Client) AddService(name string, binder ibinder.Binder, allowIsolated bool, dumpPriority int32) status.Status {
	req := parcel.New()
	req.WriteString(name)
	req.WriteStrongBinder(binder)
	req.WriteBool(allowIsolated)
	req.WriteInt32(dumpPriority)
	_, st := c.call(txAddService, req)
	if st == status.OK {
		if proc, err := procstate.Self(); err == nil {
			proc.TrackPublishedService(name, binder)
		}
	}
	return st
}

func init() {
	procstate.RegisterUnpublishHook(func(_ *procstate.State, name string, binder ibinder.Binder) {
		client, st := Default()
		if st != status.OK {
			return
		}
		client.TryUnregisterService(name, binder)
	})
}

// ListServices returns every registered name, ignoring dumpPriority
// filtering (the in-process server returns the full directory).
func (c *Client) ListServices(dumpPriority int32) ([]string, status.Status) {
	req := parcel.New()
	req.WriteInt32(dumpPriority)
	reply, st := c.call(txListServices, req)
	if st != status.OK {
		return nil, st
	}
	return readStringList(reply)
}

// notificationWatcher is the local object a process installs with
// RegisterForNotifications / WaitForService; the server calls it back with
// the resolved name and binder once registered.
type notificationWatcher struct {
	mu       sync.Mutex
	cond     *sync.Cond
	resolved bool
	name     string
	binder   ibinder.Binder
}

func newNotificationWatcher() *notificationWatcher {
	w := &notificationWatcher{}
	w.cond = sync.NewCond(&w.mu)
	return w
}

func (w *notificationWatcher) Descriptor() string { return "Vela.os.IServiceCallback" }

func (w *notificationWatcher) Transact(code uint32, data ibinder.Parcel, reply ibinder.Parcel, flags ibinder.TransactionFlags) status.Status {
	if p, ok := data.(*parcel.Parcel); ok && p != nil {
		p.SetDataPosition(0)
	}
	return w.OnTransact(code, data, reply, flags)
}
func (w *notificationWatcher) OnTransact(code uint32, data ibinder.Parcel, reply ibinder.Parcel, flags ibinder.TransactionFlags) status.Status {
	p, ok := data.(*parcel.Parcel)
	if !ok {
		return status.BadValue
	}
	name, st := p.ReadString()
	if st != status.OK {
		return st
	}
	obj, st := p.ReadNullableStrongBinder()
	if st != status.OK {
		return st
	}
	w.mu.Lock()
	w.name, w.binder, w.resolved = name, obj, true
	w.mu.Unlock()
	w.cond.Broadcast()
	return status.OK
}
func (w *notificationWatcher) LinkToDeath(ibinder.DeathRecipient, any, uint32) status.Status {
	return status.InvalidOperation
}
func (w *notificationWatcher) UnlinkToDeath(ibinder.DeathRecipient, any, uint32) (bool, status.Status) {
	return false, status.InvalidOperation
}
func (w *notificationWatcher) AttachObject(any, any, any, func(key, object, cookie any)) {}
func (w *notificationWatcher) FindObject(any) any                                       { return nil }
func (w *notificationWatcher) DetachObject(any) any                                     { return nil }
func (w *notificationWatcher) LocalBinder() ibinder.LocalBinder                          { return w }
func (w *notificationWatcher) RemoteBinder() ibinder.RemoteBinder                        { return nil }
func (w *notificationWatcher) PingBinder() status.Status                                { return status.OK }

// WaitForService subscribes via RegisterForNotifications, blocks until the
// server resolves the name (or the callback arrives for an already
// registered service), then unregisters and returns the resolved object.
func (c *Client) WaitForService(name string) (ibinder.Binder, status.Status) {
	watcher := newNotificationWatcher()

	req := parcel.New()
	req.WriteString(name)
	req.WriteStrongBinder(watcher)
	if _, st := c.call(txRegisterForNotifications, req); st != status.OK {
		return nil, st
	}

	watcher.mu.Lock()
	for !watcher.resolved {
		watcher.cond.Wait()
	}
	resolved := watcher.binder
	watcher.mu.Unlock()

	unreq := parcel.New()
	unreq.WriteString(name)
	unreq.WriteStrongBinder(watcher)
	c.call(txUnregisterForNotifications, unreq)

	return resolved, status.OK
}

// IsDeclared reports whether name is currently registered.
func (c *Client) IsDeclared(name string) (bool, status.Status) {
	req := parcel.New()
	req.WriteString(name)
	reply, st := c.call(txIsDeclared, req)
	if st != status.OK {
		return false, st
	}
	return reply.ReadBool()
}

// GetDeclaredInstances returns every registered name whose object advertises
// descriptor iface.
func (c *Client) GetDeclaredInstances(iface string) ([]string, status.Status) {
	req := parcel.New()
	req.WriteString(iface)
	reply, st := c.call(txGetDeclaredInstances, req)
	if st != status.OK {
		return nil, st
	}
	return readStringList(reply)
}

// RegisterClientCallback installs a callback fired when every client of a
// registered service disconnects; accepted by the wire protocol but not
// acted on by this runtime's server (see DESIGN.md).
func (c *Client) RegisterClientCallback(name string, binder ibinder.Binder, callback ibinder.Binder) status.Status {
	req := parcel.New()
	req.WriteString(name)
	req.WriteStrongBinder(binder)
	req.WriteStrongBinder(callback)
	_, st := c.call(txRegisterClientCallback, req)
	return st
}

// TryUnregisterService removes name's entry if it is still owned by binder.
func (c *Client) TryUnregisterService(name string, binder ibinder.Binder) (bool, status.Status) {
	req := parcel.New()
	req.WriteString(name)
	req.WriteStrongBinder(binder)
	reply, st := c.call(txTryUnregisterService, req)
	if st != status.OK {
		return false, st
	}
	return reply.ReadBool()
}

// GetServiceDebugInfo lists every registered name with its recorded PID.
func (c *Client) GetServiceDebugInfo() ([]ServiceDebugInfo, status.Status) {
	reply, st := c.call(txGetServiceDebugInfo, parcel.New())
	if st != status.OK {
		return nil, st
	}
	n, st := reply.ReadInt32()
	if st != status.OK {
		return nil, st
	}
	infos := make([]ServiceDebugInfo, 0, n)
	for i := int32(0); i < n; i++ {
		name, st := reply.ReadString()
		if st != status.OK {
			return nil, st
		}
		pid, st := reply.ReadInt32()
		if st != status.OK {
			return nil, st
		}
		regID, st := reply.ReadString()
		if st != status.OK {
			return nil, st
		}
		infos = append(infos, ServiceDebugInfo{Name: name, PID: pid, RegistrationID: regID})
	}
	return infos, status.OK
}

func readStringList(reply *parcel.Parcel) ([]string, status.Status) {
	n, st := reply.ReadInt32()
	if st != status.OK {
		return nil, st
	}
	out := make([]string, 0, n)
	for i := int32(0); i < n; i++ {
		s, st := reply.ReadString()
		if st != status.OK {
			return nil, st
		}
		out = append(out, s)
	}
	return out, status.OK
}

var _ ibinder.LocalBinder = (*notificationWatcher)(nil)
