// Package parcel implements the growable byte buffer used to marshal
// transaction data and replies, together with the index of embedded object
// references it carries alongside the raw bytes.
package parcel

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/vela-os/binder/internal/ibinder"
	"github.com/vela-os/binder/internal/status"
	"github.com/vela-os/binder/internal/uapi"
)

// flatObjectWireSize is the 24-byte flat_binder_object plus the trailing
// int32 stability tag every embedded object carries on the wire.
const flatObjectWireSize = 24 + 4

// minGrowth is the smallest capacity a freshly grown buffer is given, so that
// repeated single-byte writes on an empty parcel don't thrash realloc.
const minGrowth = 128

// objectEntry records one embedded binder reference and the offset, in data,
// where its flattened form begins.
type objectEntry struct {
	offset uint64
	kind   ibinder.TransactionFlags // reserved for future FD/handle bookkeeping
	target ibinder.Binder
	handle uint32
	isWeak bool
}

// Parcel is a growable, sequentially read/written buffer plus the set of
// object offsets embedded in it. It is not safe for concurrent use.
type Parcel struct {
	data     []byte
	pos      int
	objects  []objectEntry
	err      status.Status
	ifaceTok string // interface token most recently written, for checkInterface
}

// New returns an empty parcel with enough headroom to avoid an immediate
// grow on the first few writes.
func New() *Parcel {
	return &Parcel{data: make([]byte, 0, minGrowth)}
}

// DataSize returns the number of bytes currently written (satisfies
// internal/ibinder.Parcel).
func (p *Parcel) DataSize() int { return len(p.data) }

// DataPosition returns the current read/write cursor.
func (p *Parcel) DataPosition() int { return p.pos }

// SetDataPosition rewinds or advances the cursor for a re-read, failing with
// BadValue if out of range.
func (p *Parcel) SetDataPosition(pos int) status.Status {
	if pos < 0 || pos > len(p.data) {
		return status.BadValue
	}
	p.pos = pos
	return status.OK
}

// Error returns the latched error from the first failed operation, or OK.
func (p *Parcel) Error() status.Status { return p.err }

// Bytes exposes the raw written bytes, for handing off to the driver.
func (p *Parcel) Bytes() []byte { return p.data }

// Reset clears the parcel back to empty, zeroing the backing array first so
// that a parcel that once carried sensitive data (tokens, credentials) never
// leaks its old contents through a reused allocation.
func (p *Parcel) Reset() {
	full := p.data[:cap(p.data)]
	for i := range full {
		full[i] = 0
	}
	p.data = p.data[:0]
	p.pos = 0
	p.objects = p.objects[:0]
	p.err = status.OK
	p.ifaceTok = ""
}

func (p *Parcel) latch(s status.Status) status.Status {
	if p.err == status.OK {
		p.err = s
	}
	return s
}

// pad4 rounds n up to the next multiple of 4, the alignment every write in
// this package is padded to (spec.md §8 property 3, the "padding law").
func pad4(n int) int { return (n + 3) &^ 3 }

// grow ensures at least n more bytes are available past pos, following the
// 1.5x-or-minimum growth policy used throughout the runtime's buffers.
func (p *Parcel) grow(n int) status.Status {
	need := p.pos + n
	if need < 0 || uint64(need) > uint64(math.MaxInt32) {
		return p.latch(status.BadValue)
	}
	if need <= len(p.data) {
		return status.OK
	}
	if need <= cap(p.data) {
		p.data = p.data[:need]
		return status.OK
	}
	newCap := need * 3 / 2
	if newCap < minGrowth {
		newCap = minGrowth
	}
	buf := make([]byte, need, newCap)
	copy(buf, p.data)
	p.data = buf
	return status.OK
}

// writeRaw appends b and pads the write out to a 4-byte boundary with
// zeroes, so every write (primitive or string body) leaves pos 4-aligned —
// the precondition that keeps embedded-object offsets 4-aligned too.
func (p *Parcel) writeRaw(b []byte) status.Status {
	padded := pad4(len(b))
	if s := p.grow(padded); s != status.OK {
		return s
	}
	copy(p.data[p.pos:], b)
	for i := len(b); i < padded; i++ {
		p.data[p.pos+i] = 0
	}
	p.pos += padded
	return status.OK
}

// readRaw returns the next n content bytes and advances pos past the same
// 4-byte-aligned padding writeRaw would have added, tolerating an unpadded
// tail (a raw driver-spliced buffer at end of data) rather than failing.
func (p *Parcel) readRaw(n int) ([]byte, status.Status) {
	if p.pos+n > len(p.data) {
		return nil, p.latch(status.NotEnoughData)
	}
	b := p.data[p.pos : p.pos+n]
	padded := pad4(n)
	if p.pos+padded <= len(p.data) {
		p.pos += padded
	} else {
		p.pos += n
	}
	return b, status.OK
}

// WriteInt32 appends a little-endian int32.
func (p *Parcel) WriteInt32(v int32) status.Status {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v))
	return p.latch(p.writeRaw(b[:]))
}

// WriteUint32 appends a little-endian uint32.
func (p *Parcel) WriteUint32(v uint32) status.Status {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return p.latch(p.writeRaw(b[:]))
}

// WriteInt64 appends a little-endian int64.
func (p *Parcel) WriteInt64(v int64) status.Status {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	return p.latch(p.writeRaw(b[:]))
}

// WriteFloat64 appends a little-endian float64.
func (p *Parcel) WriteFloat64(v float64) status.Status {
	return p.WriteInt64(int64(math.Float64bits(v)))
}

// WriteByte appends a single byte.
func (p *Parcel) WriteByte(v byte) status.Status {
	return p.latch(p.writeRaw([]byte{v}))
}

// WriteBool appends a byte-sized boolean.
func (p *Parcel) WriteBool(v bool) status.Status {
	if v {
		return p.WriteByte(1)
	}
	return p.WriteByte(0)
}

// ReadInt32 consumes a little-endian int32.
func (p *Parcel) ReadInt32() (int32, status.Status) {
	b, s := p.readRaw(4)
	if s != status.OK {
		return 0, s
	}
	return int32(binary.LittleEndian.Uint32(b)), status.OK
}

// ReadUint32 consumes a little-endian uint32.
func (p *Parcel) ReadUint32() (uint32, status.Status) {
	b, s := p.readRaw(4)
	if s != status.OK {
		return 0, s
	}
	return binary.LittleEndian.Uint32(b), status.OK
}

// ReadInt64 consumes a little-endian int64.
func (p *Parcel) ReadInt64() (int64, status.Status) {
	b, s := p.readRaw(8)
	if s != status.OK {
		return 0, s
	}
	return int64(binary.LittleEndian.Uint64(b)), status.OK
}

// ReadFloat64 consumes a little-endian float64.
func (p *Parcel) ReadFloat64() (float64, status.Status) {
	v, s := p.ReadInt64()
	if s != status.OK {
		return 0, s
	}
	return math.Float64frombits(uint64(v)), status.OK
}

// ReadByte consumes a single byte.
func (p *Parcel) ReadByte() (byte, status.Status) {
	b, s := p.readRaw(1)
	if s != status.OK {
		return 0, s
	}
	return b[0], status.OK
}

// ReadBool consumes a byte-sized boolean.
func (p *Parcel) ReadBool() (bool, status.Status) {
	b, s := p.ReadByte()
	return b != 0, s
}

// WriteString writes a length-prefixed UTF-16-code-unit-counted string body
// as raw UTF-8 bytes with a 4-byte length header, matching the length
// semantics (code unit count, not byte count callers must special-case) that
// the wire format uses for String16 fields. A negative length on the wire
// means "null". Per spec.md §4.2 the layout is length, raw bytes, a NUL
// byte, then padding to 4 — so the body and its NUL terminator are written
// as a single raw chunk and padded together, not padded individually.
func (p *Parcel) WriteString(s string) status.Status {
	units := utf16Len(s)
	if st := p.WriteInt32(int32(units)); st != status.OK {
		return st
	}
	body := make([]byte, len(s)+1)
	copy(body, s)
	return p.latch(p.writeRaw(body))
}

// WriteNullableString writes a string that may be absent, using -1 as the
// null-length sentinel.
func (p *Parcel) WriteNullableString(s *string) status.Status {
	if s == nil {
		return p.WriteInt32(-1)
	}
	return p.WriteString(*s)
}

// ReadString reads back a string written with WriteString. A negative
// length reads back as the empty string, the null-sentinel case.
func (p *Parcel) ReadString() (string, status.Status) {
	n, s := p.ReadInt32()
	if s != status.OK {
		return "", s
	}
	if n < 0 {
		return "", status.OK
	}
	// n counts UTF-16 units; walk the UTF-8 body to find its byte length.
	rest := p.data[p.pos:]
	nb := 0
	for units := 0; units < int(n) && nb < len(rest); {
		r, size := utf8.DecodeRune(rest[nb:])
		if r > 0xffff {
			units += 2
		} else {
			units++
		}
		nb += size
	}
	b, s := p.readRaw(nb + 1)
	if s != status.OK {
		return "", s
	}
	return string(b[:nb]), status.OK
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		if r > 0xffff {
			n += 2
		} else {
			n++
		}
	}
	return n
}

// WriteInterfaceToken writes the interface name a transaction claims to
// implement; the local object's OnTransact dispatcher must call
// CheckInterface before trusting the rest of the parcel's contents.
func (p *Parcel) WriteInterfaceToken(descriptor string) status.Status {
	return p.WriteString(descriptor)
}

// CheckInterface reads back an interface token and compares it against
// descriptor, returning BadType on mismatch the way an unrecognized
// transaction's dispatcher rejects it before touching the payload.
func (p *Parcel) CheckInterface(descriptor string) status.Status {
	got, s := p.ReadString()
	if s != status.OK {
		return s
	}
	if got != descriptor {
		return status.BadType
	}
	return status.OK
}

// strongRefHolder is implemented by local objects that back their strong
// count with internal/refbase; WriteStrongBinder bumps it so the object
// stays alive for at least as long as this parcel does.
type strongRefHolder interface {
	IncStrong()
}

// tokenedBinder is implemented by stub-side (local) objects; WriteStrongBinder
// consults it for the pointer-sized token a flat_binder_object's Binder field
// carries for a BinderTypeBinder reference, the same token
// internal/threadstate's local registry is keyed by.
type tokenedBinder interface {
	Token() uint64
}

// stabilityTagged lets an object report its own stability level for the
// trailing tag WriteStrongBinder writes; objects that don't implement it get
// the default for their kind (see defaultStability).
type stabilityTagged interface {
	StabilityTag() status.Stability
}

// WriteStrongBinder embeds a strong reference to target at the current
// position as a real flat_binder_object (type, handle or token, plus a
// trailing stability tag) per spec.md §4.2's data model. A nil target writes
// a null placeholder (an all-zero flat object: type, binder and cookie all
// zero) that ReadNullableStrongBinder returns as nil.
func (p *Parcel) WriteStrongBinder(target ibinder.Binder) status.Status {
	offset := uint64(p.pos)

	var obj uapi.FlatBinderObject
	if target != nil {
		if h, ok := target.(strongRefHolder); ok {
			h.IncStrong()
		}
		if remote := target.RemoteBinder(); remote != nil {
			obj.Type = uapi.BinderTypeHandle
			obj.SetHandle(remote.Handle())
		} else {
			obj.Type = uapi.BinderTypeBinder
			if tb, ok := target.(tokenedBinder); ok {
				obj.Binder = tb.Token()
			}
		}
	}

	buf := make([]byte, flatObjectWireSize)
	copy(buf, uapi.Marshal(&obj))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(status.Tag(defaultStability(target))))
	if st := p.latch(p.writeRaw(buf)); st != status.OK {
		return st
	}
	if target != nil {
		p.objects = append(p.objects, objectEntry{offset: offset, target: target})
	}
	return status.OK
}

// defaultStability reports the stability level WriteStrongBinder stamps on
// target absent an explicit stabilityTagged implementation: a local object is
// assumed to be this compilation unit's own code, while a remote handle's
// stability was already negotiated when it first crossed into this process.
func defaultStability(target ibinder.Binder) status.Stability {
	if target == nil {
		return status.StabilityUnknown
	}
	if st, ok := target.(stabilityTagged); ok {
		return st.StabilityTag()
	}
	if target.RemoteBinder() != nil {
		return status.StabilityUnknown
	}
	return status.StabilityCompilationUnit
}

// ReadNullableStrongBinder reads back an object written by WriteStrongBinder.
// When the transport layer has already resolved this transaction's embedded
// objects (see AttachUnflattenedObjects), the offset is matched against that
// index; otherwise (same-process callers that never crossed the driver) the
// in-memory target recorded at write time is used directly. A flat object
// whose type, binder and cookie fields are all zero is the null placeholder
// and reads back as (nil, OK).
func (p *Parcel) ReadNullableStrongBinder() (ibinder.Binder, status.Status) {
	offset := uint64(p.pos)
	raw, s := p.readRaw(flatObjectWireSize)
	if s != status.OK {
		return nil, s
	}
	var obj uapi.FlatBinderObject
	if err := uapi.Unmarshal(raw[:24], &obj); err != nil {
		return nil, p.latch(status.BadValue)
	}
	for _, e := range p.objects {
		if e.offset == offset {
			return e.target, status.OK
		}
	}
	if obj.Type == 0 && obj.Binder == 0 && obj.Cookie == 0 {
		return nil, status.OK
	}
	return nil, p.latch(status.BadValue)
}

// AttachUnflattenedObjects installs an object index produced by the transport
// layer when it unflattens an incoming transaction buffer; it lets
// ReadNullableStrongBinder resolve driver-delivered proxy/stub handles at
// their recorded offsets without the parcel itself knowing about the driver.
func (p *Parcel) AttachUnflattenedObjects(objects []ObjectAt) {
	p.objects = p.objects[:0]
	for _, o := range objects {
		p.objects = append(p.objects, objectEntry{offset: o.Offset, target: o.Target})
	}
}

// ObjectAt pairs a resolved binder reference with the byte offset its
// placeholder occupies in the raw data.
type ObjectAt struct {
	Offset uint64
	Target ibinder.Binder
}

// Objects returns the offsets of every embedded object reference, in the
// order they were written, for handing to the transport layer as the
// transaction's offsets array.
func (p *Parcel) Objects() []uint64 {
	offs := make([]uint64, len(p.objects))
	for i, e := range p.objects {
		offs[i] = e.offset
	}
	return offs
}

// WriteBytesRaw appends b verbatim with no length prefix and no extra
// padding, used by the transport layer to seed a parcel from a
// driver-delivered transaction buffer before handing it to application code
// for reading: b already carries whatever padding its original sender
// applied, so padding it again here would shift every offset downstream.
func (p *Parcel) WriteBytesRaw(b []byte) status.Status {
	if s := p.grow(len(b)); s != status.OK {
		return s
	}
	copy(p.data[p.pos:], b)
	p.pos += len(b)
	return status.OK
}

// WriteFileDescriptor writes fd at the current position as a plain int32. It
// is not flattened as a BinderTypeFD object and not recorded in the object
// index, so the transport passes the number through untranslated.
func (p *Parcel) WriteFileDescriptor(fd int) status.Status {
	return p.WriteInt32(int32(fd))
}

// String renders a short diagnostic summary, useful in logs.
func (p *Parcel) String() string {
	return fmt.Sprintf("parcel{size=%d pos=%d objects=%d}", len(p.data), p.pos, len(p.objects))
}
