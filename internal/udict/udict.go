// Package udict implements the typed attribute dictionary (spec §3, §4.5):
// an ordered, duplicate-free set of attributes keyed by (type, optional
// name), pool-allocated the way the teacher pools its small config/info
// structs (internal/ctrl.DeviceParams, uapi.UblkParams) rather than
// reaching for interface{} maps.
package udict

import (
	"fmt"

	"github.com/upipe/upipe-go/internal/ulifo"
)

// AttrType enumerates the payload kinds an attribute can carry (spec §3).
type AttrType uint8

const (
	TypeUint8 AttrType = iota
	TypeUint64
	TypeInt64
	TypeRational
	TypeString
	TypeOpaque
)

func (t AttrType) String() string {
	switch t {
	case TypeUint8:
		return "uint8"
	case TypeUint64:
		return "uint64"
	case TypeInt64:
		return "int64"
	case TypeRational:
		return "rational"
	case TypeString:
		return "string"
	case TypeOpaque:
		return "opaque"
	default:
		return fmt.Sprintf("AttrType(%d)", uint8(t))
	}
}

// Rational is a num/den pair, e.g. a frame rate or sample aspect ratio.
type Rational struct {
	Num, Den int64
}

// Attr is one entry in a Dict.
type Attr struct {
	Type    AttrType
	Name    string // attribute name; the shorthand accessors use the reserved names
	U8      uint8
	U64     uint64
	I64     int64
	Rat     Rational
	Str     string
	Opaque  []byte
}

type key struct {
	typ  AttrType
	name string
}

// Dict is an ordered, duplicate-free sequence of attributes.
type Dict struct {
	attrs []Attr
	index map[key]int
}

func newDict() *Dict {
	return &Dict{index: make(map[key]int, 8)}
}

// ErrNotFound and ErrWrongType are returned by Dict lookups. ErrDuplicate
// is declared but no Dict operation returns it, since setting an existing
// (type,name) overwrites. Dict errors are always returned locally, never
// thrown as probe events (spec §7: "WrongType ... Return failure; no probe").
var (
	ErrDuplicate = fmt.Errorf("udict: duplicate attribute")
	ErrNotFound  = fmt.Errorf("udict: attribute not found")
	ErrWrongType = fmt.Errorf("udict: wrong attribute type")
)

func (d *Dict) keyOf(a Attr) key { return key{a.Type, a.Name} }

// set inserts or overwrites an attribute (spec §3: "Duplicates by
// (type,name) are forbidden" — a set of the same (type,name) is an update,
// not a dup). The same name under a different type is a different key and
// is stored as a separate attribute.
func (d *Dict) set(a Attr) {
	k := d.keyOf(a)
	if i, ok := d.index[k]; ok {
		d.attrs[i] = a
		return
	}
	d.index[k] = len(d.attrs)
	d.attrs = append(d.attrs, a)
}

// get looks up (typ, name). A miss is only ErrNotFound if name isn't
// carried under any type; if another attribute shares name under a
// different type, that's ErrWrongType instead (spec §7, §8 scenario 6:
// "set_unsigned(d,\"k.pts\",42); get_string(d,\"k.pts\")" must fail
// WrongType, not silently miss).
func (d *Dict) get(typ AttrType, name string) (Attr, error) {
	if i, ok := d.index[key{typ, name}]; ok {
		return d.attrs[i], nil
	}
	if name != "" {
		for _, other := range d.attrs {
			if other.Name == name {
				return Attr{}, ErrWrongType
			}
		}
	}
	return Attr{}, ErrNotFound
}

// Delete removes the attribute at (typ, name), if present.
func (d *Dict) Delete(typ AttrType, name string) {
	k := key{typ, name}
	i, ok := d.index[k]
	if !ok {
		return
	}
	delete(d.index, k)
	d.attrs = append(d.attrs[:i], d.attrs[i+1:]...)
	for kk, idx := range d.index {
		if idx > i {
			d.index[kk] = idx - 1
		}
	}
}

// Iterate calls fn for every attribute in insertion order. Iteration stops
// early if fn returns false.
func (d *Dict) Iterate(fn func(Attr) bool) {
	for _, a := range d.attrs {
		if !fn(a) {
			return
		}
	}
}

// Len returns the number of attributes currently stored.
func (d *Dict) Len() int { return len(d.attrs) }

// Clone returns an independent copy; the caller owns the result and must
// release it through the same Manager.
func (d *Dict) Clone() *Dict {
	n := newDict()
	n.attrs = make([]Attr, len(d.attrs))
	copy(n.attrs, d.attrs)
	for k, v := range d.index {
		n.index[k] = v
	}
	return n
}

// Import merges src's attributes into d, overwriting on (type,name)
// collision (spec §4.5 "import (merge)").
func (d *Dict) Import(src *Dict) {
	for _, a := range src.attrs {
		d.set(a)
	}
}

// Typed accessors. Each Get returns ErrNotFound or ErrWrongType; each Set
// never fails (duplicates by (type,name) simply overwrite).

func (d *Dict) SetUint8(name string, v uint8) { d.set(Attr{Type: TypeUint8, Name: name, U8: v}) }
func (d *Dict) GetUint8(name string) (uint8, error) {
	a, err := d.get(TypeUint8, name)
	return a.U8, err
}

func (d *Dict) SetUint64(name string, v uint64) { d.set(Attr{Type: TypeUint64, Name: name, U64: v}) }
func (d *Dict) GetUint64(name string) (uint64, error) {
	a, err := d.get(TypeUint64, name)
	return a.U64, err
}

func (d *Dict) SetInt64(name string, v int64) { d.set(Attr{Type: TypeInt64, Name: name, I64: v}) }
func (d *Dict) GetInt64(name string) (int64, error) {
	a, err := d.get(TypeInt64, name)
	return a.I64, err
}

func (d *Dict) SetRational(name string, v Rational) { d.set(Attr{Type: TypeRational, Name: name, Rat: v}) }
func (d *Dict) GetRational(name string) (Rational, error) {
	a, err := d.get(TypeRational, name)
	return a.Rat, err
}

func (d *Dict) SetString(name string, v string) { d.set(Attr{Type: TypeString, Name: name, Str: v}) }
func (d *Dict) GetString(name string) (string, error) {
	a, err := d.get(TypeString, name)
	return a.Str, err
}

func (d *Dict) SetOpaque(name string, v []byte) {
	cp := append([]byte(nil), v...)
	d.set(Attr{Type: TypeOpaque, Name: name, Opaque: cp})
}
func (d *Dict) GetOpaque(name string) ([]byte, error) {
	a, err := d.get(TypeOpaque, name)
	return a.Opaque, err
}

// GetTyped is a generic lookup used by callers that know an attribute's
// name but want a WrongType error rather than a silent zero value when the
// stored type doesn't match what they expect (spec §8 scenario 6).
func (d *Dict) GetTyped(typ AttrType, name string) (Attr, error) {
	return d.get(typ, name)
}

// Manager pools Dict backing structures, the way a udict.Manager owns its
// attribute storage per spec §3.
type Manager struct {
	pool    *ulifo.Pool[*Dict]
	maxSize int
}

// NewManager returns a Manager whose pool holds at most poolDepth Dicts;
// maxSize bounds the number of attributes a pooled Dict may carry before
// it is dropped back to the heap instead of the pool (spec §4.4 "Pool
// discipline": oversized objects are freed to the raw allocator, not
// recycled).
func NewManager(poolDepth, maxSize int) *Manager {
	return &Manager{pool: ulifo.New[*Dict](poolDepth), maxSize: maxSize}
}

// Alloc returns an empty Dict, reused from the pool when available.
func (m *Manager) Alloc() *Dict {
	if d, ok := m.pool.Pop(); ok {
		return d
	}
	return newDict()
}

// Free returns d to the pool, or discards it if the pool is full or d has
// grown past maxSize.
func (m *Manager) Free(d *Dict) {
	if d == nil {
		return
	}
	if m.maxSize > 0 && len(d.attrs) > m.maxSize {
		return
	}
	d.attrs = d.attrs[:0]
	for k := range d.index {
		delete(d.index, k)
	}
	m.pool.Push(d)
}
