package emu

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math/bits"
	"sort"
)

// MemoryRecord is the per-cell state of the sparse memory: the stored word and
// which shard/timestamp last touched it. Both start at 0.
type MemoryRecord struct {
	Value     uint32 `json:"value"`
	Shard     uint32 `json:"shard"`
	Timestamp uint32 `json:"timestamp"`
}

// Pages hold 1024 records each, keyed by the high 22 address bits. Programs
// touch a tiny fraction of the 2^32 space, but touches cluster, so paging
// beats a flat hash map on locality without changing observable behavior.
const (
	pageAddrSize = 10
	pageSize     = 1 << pageAddrSize
	pageAddrMask = pageSize - 1
)

type memPage struct {
	occupied [pageSize / 64]uint64
	records  [pageSize]MemoryRecord
	count    int
}

func (p *memPage) has(i uint32) bool {
	return p.occupied[i>>6]&(1<<(i&63)) != 0
}

func (p *memPage) mark(i uint32) {
	p.occupied[i>>6] |= 1 << (i & 63)
}

func (p *memPage) clear(i uint32) {
	p.occupied[i>>6] &^= 1 << (i & 63)
}

// PagedMemory is a sparse 32-bit address -> MemoryRecord mapping with O(1)
// amortized access. Iteration order is unspecified; callers requiring order
// must sort. Address 0 is a valid key.
type PagedMemory struct {
	pages map[uint32]*memPage
	count int

	// single-entry lookup cache: most instructions touch the registers page
	// plus one data page.
	lastKey  uint32
	lastPage *memPage
}

func NewPagedMemory() *PagedMemory {
	return &PagedMemory{
		pages:   make(map[uint32]*memPage),
		lastKey: ^uint32(0),
	}
}

func (m *PagedMemory) pageLookup(key uint32) (*memPage, bool) {
	if key == m.lastKey && m.lastPage != nil {
		return m.lastPage, true
	}
	p, ok := m.pages[key]
	if ok {
		m.lastKey = key
		m.lastPage = p
	}
	return p, ok
}

// Get returns a pointer into the map; the record may be mutated in place.
func (m *PagedMemory) Get(addr uint32) (*MemoryRecord, bool) {
	p, ok := m.pageLookup(addr >> pageAddrSize)
	if !ok {
		return nil, false
	}
	i := addr & pageAddrMask
	if !p.has(i) {
		return nil, false
	}
	return &p.records[i], true
}

// GetOrInsert is the entry API: it returns the existing record, or seeds a
// fresh one from init at first touch. The bool reports whether the cell
// already existed.
func (m *PagedMemory) GetOrInsert(addr uint32, init func() MemoryRecord) (*MemoryRecord, bool) {
	key := addr >> pageAddrSize
	p, ok := m.pageLookup(key)
	if !ok {
		p = &memPage{}
		m.pages[key] = p
		m.lastKey = key
		m.lastPage = p
	}
	i := addr & pageAddrMask
	if p.has(i) {
		return &p.records[i], true
	}
	p.mark(i)
	p.count++
	m.count++
	p.records[i] = init()
	return &p.records[i], false
}

func (m *PagedMemory) Insert(addr uint32, rec MemoryRecord) {
	cell, _ := m.GetOrInsert(addr, func() MemoryRecord { return rec })
	*cell = rec
}

func (m *PagedMemory) Remove(addr uint32) (MemoryRecord, bool) {
	key := addr >> pageAddrSize
	p, ok := m.pageLookup(key)
	if !ok {
		return MemoryRecord{}, false
	}
	i := addr & pageAddrMask
	if !p.has(i) {
		return MemoryRecord{}, false
	}
	rec := p.records[i]
	p.clear(i)
	p.records[i] = MemoryRecord{}
	p.count--
	m.count--
	if p.count == 0 {
		delete(m.pages, key)
		if m.lastKey == key {
			m.lastKey = ^uint32(0)
			m.lastPage = nil
		}
	}
	return rec, true
}

func (m *PagedMemory) Len() int { return m.count }

// Range visits every occupied cell in unspecified order. Return false from fn
// to stop early.
func (m *PagedMemory) Range(fn func(addr uint32, rec *MemoryRecord) bool) {
	for key, p := range m.pages {
		base := key << pageAddrSize
		for w, mask := range p.occupied {
			for mask != 0 {
				i := uint32(w<<6) + uint32(bits.TrailingZeros64(mask))
				if !fn(base|i, &p.records[i]) {
					return
				}
				mask &= mask - 1
			}
		}
	}
}

// Addrs returns all occupied addresses in ascending order.
func (m *PagedMemory) Addrs() []uint32 {
	out := make([]uint32, 0, m.count)
	m.Range(func(addr uint32, _ *MemoryRecord) bool {
		out = append(out, addr)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (m *PagedMemory) Clone() *PagedMemory {
	out := NewPagedMemory()
	out.count = m.count
	for key, p := range m.pages {
		cp := *p
		out.pages[key] = &cp
	}
	return out
}

type memCellEntry struct {
	Addr   uint32       `json:"addr"`
	Record MemoryRecord `json:"record"`
}

func (m *PagedMemory) MarshalJSON() ([]byte, error) {
	cells := make([]memCellEntry, 0, m.count)
	m.Range(func(addr uint32, rec *MemoryRecord) bool {
		cells = append(cells, memCellEntry{Addr: addr, Record: *rec})
		return true
	})
	sort.Slice(cells, func(i, j int) bool { return cells[i].Addr < cells[j].Addr })
	return json.Marshal(cells)
}

func (m *PagedMemory) UnmarshalJSON(data []byte) error {
	var cells []memCellEntry
	if err := json.Unmarshal(data, &cells); err != nil {
		return err
	}
	*m = *NewPagedMemory()
	for i, c := range cells {
		if _, ok := m.Get(c.Addr); ok {
			return fmt.Errorf("cannot load duplicate memory cell, entry %d, addr %#x", i, c.Addr)
		}
		m.Insert(c.Addr, c.Record)
	}
	return nil
}

// Serialize writes the memory in a simple binary format which can be read
// again using Deserialize: a big-endian cell count followed by
// (addr, value, shard, timestamp) tuples in ascending address order.
func (m *PagedMemory) Serialize(out io.Writer) error {
	if err := binary.Write(out, binary.BigEndian, uint64(m.count)); err != nil {
		return err
	}
	for _, addr := range m.Addrs() {
		rec, _ := m.Get(addr)
		if err := binary.Write(out, binary.BigEndian, [4]uint32{addr, rec.Value, rec.Shard, rec.Timestamp}); err != nil {
			return err
		}
	}
	return nil
}

func (m *PagedMemory) Deserialize(in io.Reader) error {
	var count uint64
	if err := binary.Read(in, binary.BigEndian, &count); err != nil {
		return err
	}
	*m = *NewPagedMemory()
	for i := uint64(0); i < count; i++ {
		var cell [4]uint32
		if err := binary.Read(in, binary.BigEndian, &cell); err != nil {
			return err
		}
		m.Insert(cell[0], MemoryRecord{Value: cell[1], Shard: cell[2], Timestamp: cell[3]})
	}
	return nil
}
