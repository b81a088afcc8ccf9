// Package ir implements the IR module and symbol registry: a thread-sharded
// module where functions, globals, and externals are allocated from
// per-worker pools and linked into module-wide intrusive lists under atomic
// compare-and-swap discipline. A C rendition of this layout would keep one
// generic symbol header with a single "next" field and cast per tag; Go has
// no safe equivalent, so each symbol kind carries its own typed next pointer
// and its own list head in Module: three specializations of one pattern
// rather than one generic list plus unsafe casts.
package ir

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Tag identifies which of a module's three symbol kinds a reference names.
type Tag int

const (
	TagFunction Tag = iota
	TagGlobal
	TagExternal
	tagCount
)

// Linkage is the visibility discipline of a symbol: private symbols stay
// local to their translation unit, public ones are exported.
type Linkage int

const (
	LinkagePrivate Linkage = iota
	LinkagePublic
)

// SectionKind names one of the module's four standard sections.
type SectionKind int

const (
	SectionText SectionKind = iota
	SectionData
	SectionRData
	SectionTLS
	sectionCount
)

// Section is one contiguous output region of the module. The object-file
// writers consume these; the front end only assigns symbols to them.
type Section struct {
	Name string
	Kind SectionKind
}

// DataType is the IR's reduced data-type lattice, independent of the C type
// system's richer Kind set. Every C type maps onto one of these for
// prototype-building purposes.
type DataType int

const (
	Void DataType = iota
	I8
	I16
	I32
	I64
	F32
	F64
	Ptr
)

// Prototype is a function's shape as the IR sees it: return and parameter
// data types, independent of body. HasAggregateReturn records that Params[0]
// is the implicit pointer prepended for a struct/union return.
type Prototype struct {
	Return             DataType
	Params             []DataType
	Varargs            bool
	HasAggregateReturn bool
}

// Function is a defined or declared function symbol.
type Function struct {
	id      int64
	name    string
	linkage Linkage
	next    atomic.Pointer[Function]

	BuildID uuid.UUID
	Proto   Prototype
	// Defined is false for a prototype-only registration. The IR body
	// builder that consumes a defined function's statements is a
	// subsequent lowering pass outside this module.
	Defined bool
}

func (f *Function) ID() int64        { return f.id }
func (f *Function) Name() string     { return f.name }
func (f *Function) Linkage() Linkage { return f.linkage }

// SymRef names a relocation target for an InitRecord: a Function, Global,
// or External by tag and name, resolved by the linker rather than by this
// module.
type SymRef struct {
	Tag  Tag
	Name string
}

// InitRecord is one initializer span for a Global: raw bytes when Symbol is
// nil, otherwise a relocation to the named symbol.
type InitRecord struct {
	Offset int64
	Data   []byte
	Symbol *SymRef
}

// Global is a defined global-variable symbol.
type Global struct {
	id      int64
	name    string
	linkage Linkage
	next    atomic.Pointer[Global]

	Size    uint32
	Align   uint32
	Section SectionKind
	Inits   []InitRecord
}

func (g *Global) ID() int64        { return g.id }
func (g *Global) Name() string     { return g.name }
func (g *Global) Linkage() Linkage { return g.linkage }

// External is an unresolved reference to a symbol defined elsewhere.
type External struct {
	id      int64
	name    string
	linkage Linkage
	next    atomic.Pointer[External]
}

func (e *External) ID() int64        { return e.id }
func (e *External) Name() string     { return e.name }
func (e *External) Linkage() Linkage { return e.linkage }

// poolChunkSize is how many symbols one pool chunk holds. Chunks are never
// reallocated once handed out, so pointers published onto the module's
// intrusive lists stay valid for the module's lifetime.
const poolChunkSize = 64

// Pool is one worker's bump allocator, amortizing allocation without a lock
// on the hot path. Allocation bumps a cursor within the current chunk and
// starts a fresh chunk when it fills; entries are never freed before module
// teardown.
type Pool struct {
	functions chunkList[Function]
	globals   chunkList[Global]
	externals chunkList[External]
}

type chunkList[T any] struct {
	chunks [][]T
}

func (cl *chunkList[T]) alloc() *T {
	n := len(cl.chunks)
	if n == 0 || len(cl.chunks[n-1]) == cap(cl.chunks[n-1]) {
		cl.chunks = append(cl.chunks, make([]T, 0, poolChunkSize))
		n++
	}
	chunk := cl.chunks[n-1]
	chunk = chunk[:len(chunk)+1]
	cl.chunks[n-1] = chunk
	return &chunk[len(chunk)-1]
}

// Module owns the per-worker pools, the per-tag intrusive lists, and the
// label-id allocator. Safe for concurrent use by multiple translation-unit
// workers: symbol creation only ever bumps a worker-local pool (exclusive
// to that worker's goroutine, see Module.WorkerPool) then publishes via CAS
// onto the shared list head.
type Module struct {
	mu    sync.Mutex // guards growth of the pools slice on first use by a new worker
	pools []*Pool

	funcHead   atomic.Pointer[Function]
	globalHead atomic.Pointer[Global]
	externHead atomic.Pointer[External]

	symbolCount [tagCount]atomic.Int64
	nextID      atomic.Int64

	// Labels hands out module-unique label ids; the statement checker
	// reserves one per label statement since later passes may goto it.
	Labels LabelAllocator

	// Sections are the module's four standard output regions, fixed at
	// creation.
	Sections [sectionCount]Section
}

// LabelAllocator issues module-unique label ids. Safe for concurrent use.
type LabelAllocator struct {
	next atomic.Int64
}

// Reserve returns the next unused label id.
func (l *LabelAllocator) Reserve() int {
	return int(l.next.Add(1))
}

// NewModule creates an empty module with its four standard sections and no
// worker pools registered yet.
func NewModule() *Module {
	return &Module{
		Sections: [sectionCount]Section{
			{Name: ".text", Kind: SectionText},
			{Name: ".data", Kind: SectionData},
			{Name: ".rdata", Kind: SectionRData},
			{Name: ".tls$", Kind: SectionTLS},
		},
	}
}

// WorkerPool returns (creating if necessary) the pool for worker tid. Each
// translation-unit goroutine calls this once with its own thread index and
// then allocates exclusively from the returned pool; only first-time growth
// of the pools slice itself takes Module.mu.
func (m *Module) WorkerPool(tid int) *Pool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for len(m.pools) <= tid {
		m.pools = append(m.pools, &Pool{})
	}
	return m.pools[tid]
}

// NewFunction allocates a Function from p, assigns it a module-unique id
// and a uuid build id, and publishes it onto the module's function list
// with a CAS-prepend loop.
func (m *Module) NewFunction(p *Pool, name string, linkage Linkage, proto Prototype, defined bool) *Function {
	f := p.functions.alloc()
	f.id = m.nextID.Add(1)
	f.name = name
	f.linkage = linkage
	f.BuildID = uuid.New()
	f.Proto = proto
	f.Defined = defined
	m.symbolCount[TagFunction].Add(1)
	for {
		old := m.funcHead.Load()
		f.next.Store(old)
		if m.funcHead.CompareAndSwap(old, f) {
			break
		}
	}
	return f
}

// NewGlobal allocates and publishes a Global symbol.
func (m *Module) NewGlobal(p *Pool, name string, linkage Linkage, size, align uint32, section SectionKind, inits []InitRecord) *Global {
	g := p.globals.alloc()
	g.id = m.nextID.Add(1)
	g.name = name
	g.linkage = linkage
	g.Size = size
	g.Align = align
	g.Section = section
	g.Inits = inits
	m.symbolCount[TagGlobal].Add(1)
	for {
		old := m.globalHead.Load()
		g.next.Store(old)
		if m.globalHead.CompareAndSwap(old, g) {
			break
		}
	}
	return g
}

// NewExternal allocates and publishes an External symbol.
func (m *Module) NewExternal(p *Pool, name string) *External {
	e := p.externals.alloc()
	e.id = m.nextID.Add(1)
	e.name = name
	e.linkage = LinkagePublic
	m.symbolCount[TagExternal].Add(1)
	for {
		old := m.externHead.Load()
		e.next.Store(old)
		if m.externHead.CompareAndSwap(old, e) {
			break
		}
	}
	return e
}

// SymbolCount returns the number of symbols registered under tag so far.
func (m *Module) SymbolCount(tag Tag) int64 {
	return m.symbolCount[tag].Load()
}

// ForEachFunction iterates the function list. The traversal is only
// snapshot-consistent once all writer goroutines have quiesced (typical
// usage: check all translation units concurrently, join, then iterate for
// codegen and export); concurrent iteration with active writers is
// undefined.
func (m *Module) ForEachFunction(fn func(*Function)) {
	for n := m.funcHead.Load(); n != nil; n = n.next.Load() {
		fn(n)
	}
}

// ForEachGlobal iterates the global list. Same quiescence rule as
// ForEachFunction.
func (m *Module) ForEachGlobal(fn func(*Global)) {
	for n := m.globalHead.Load(); n != nil; n = n.next.Load() {
		fn(n)
	}
}

// ForEachExternal iterates the external list. Same quiescence rule as
// ForEachFunction.
func (m *Module) ForEachExternal(fn func(*External)) {
	for n := m.externHead.Load(); n != nil; n = n.next.Load() {
		fn(n)
	}
}
