// Package pool implements the reference counted buffer allocator shared by
// the command path, the response path and the data path.
//
// Every buffer carries a small header: its size, a priority tag, a user
// count and whether it came from the reserved free list. Reserved buffers are
// preallocated at construction and recycled on release; all other buffers are
// charged against an optional byte budget.
package pool

import (
	"errors"
	"sync"
)

var (
	ErrNoMemory      = errors.New("pool: out of memory")
	ErrDoubleFree    = errors.New("pool: buffer released more times than referenced")
	ErrNilBuffer     = errors.New("pool: nil buffer")
	ErrTooLarge      = errors.New("pool: allocation larger than 65535 bytes")
	ErrZeroSize      = errors.New("pool: zero size allocation")
	ErrBadPriority   = errors.New("pool: priority out of range")
	ErrTooManyUsers  = errors.New("pool: user count overflow")
	errBadAlignment  = errors.New("pool: alignment must be a power of two")
	errBadReservedSz = errors.New("pool: reserved buffers need a size")
)

// MaxSize is the largest single allocation.
const MaxSize = 0xffff

// DefaultAlign is the payload alignment used when Config.Align is zero.
const DefaultAlign = 32

// Priority tags data path buffers by traffic class. NoPriority marks
// buffers allocated for the command and response paths.
type Priority int8

const NoPriority Priority = -1

// Config configures a Pool.
type Config struct {
	// Align rounds every allocation up to a multiple of Align bytes so cache
	// maintenance never touches a neighbouring buffer. Must be a power of 2.
	Align int
	// MaxBytes caps the bytes held by general allocations. Zero means no cap.
	MaxBytes int
	// Priorities is the number of data path priority tiers.
	Priorities int
	// ReservedCount buffers of ReservedSize bytes are preallocated and
	// served first to priority allocations that fit.
	ReservedCount int
	ReservedSize  int
	// CacheMaintenance, if set, is invoked on every buffer before it is
	// handed out and after it is released.
	CacheMaintenance func(b []byte)
}

// Buffer is a reference counted allocation.
type Buffer struct {
	data     []byte
	size     uint16
	prio     Priority
	users    uint8
	reserved bool
}

// Bytes returns the buffer contents. The slice capacity covers the aligned
// allocation.
func (b *Buffer) Bytes() []byte { return b.data[:b.size] }

// Len returns the current length of the buffer.
func (b *Buffer) Len() int { return int(b.size) }

// Cap returns the aligned capacity of the buffer.
func (b *Buffer) Cap() int { return cap(b.data) }

// Truncate shortens the buffer to n bytes, or grows it up to its capacity.
func (b *Buffer) Truncate(n int) {
	if n < 0 || n > cap(b.data) || n > MaxSize {
		panic("pool: truncate out of range")
	}
	b.size = uint16(n)
}

// Priority returns the priority tag of the buffer.
func (b *Buffer) Priority() Priority { return b.prio }

// Reserved reports whether the buffer came from the reserved free list.
func (b *Buffer) Reserved() bool { return b.reserved }

// TierStats holds per priority counters.
type TierStats struct {
	Allocs      uint64
	Outstanding int
}

// Stats is a snapshot of pool accounting.
type Stats struct {
	Allocs   uint64
	Frees    uint64
	Failures uint64
	// Outstanding buffers and the aligned bytes they hold.
	Outstanding      int
	OutstandingBytes int
	// Bytes currently charged against Config.MaxBytes.
	GeneralBytes   int
	ReservedFree   int
	ReservedHits   uint64
	ReservedMisses uint64
	Tiers          []TierStats
}

// Pool is a buffer allocator safe for concurrent use.
type Pool struct {
	mu       sync.Mutex
	cfg      Config
	align    uint
	reserved []*Buffer
	stats    Stats
}

// New returns a pool configured by cfg with its reserved list populated.
func New(cfg Config) (*Pool, error) {
	if cfg.Align == 0 {
		cfg.Align = DefaultAlign
	}
	if cfg.Align < 0 || !ispow2(uint(cfg.Align)) {
		return nil, errBadAlignment
	}
	if cfg.ReservedCount > 0 && (cfg.ReservedSize <= 0 || cfg.ReservedSize > MaxSize) {
		return nil, errBadReservedSz
	}
	p := &Pool{
		cfg:   cfg,
		align: uint(cfg.Align),
	}
	p.stats.Tiers = make([]TierStats, cfg.Priorities)
	rsize := alignup(uint(cfg.ReservedSize), p.align)
	for i := 0; i < cfg.ReservedCount; i++ {
		p.reserved = append(p.reserved, &Buffer{
			data:     make([]byte, cfg.ReservedSize, rsize),
			prio:     NoPriority,
			reserved: true,
		})
	}
	p.stats.ReservedFree = len(p.reserved)
	return p, nil
}

// Alloc returns a buffer of size bytes for the command or response path.
func (p *Pool) Alloc(size int) (*Buffer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.alloc(size, NoPriority)
}

// AllocPacket returns a buffer of size bytes for the data path. The reserved
// free list is tried first; on a miss the buffer comes from the general
// allocator and is tagged with prio.
func (p *Pool) AllocPacket(size int, prio Priority) (*Buffer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if prio < 0 || int(prio) >= len(p.stats.Tiers) {
		p.stats.Failures++
		return nil, ErrBadPriority
	}
	if n := len(p.reserved); n > 0 && size > 0 && size <= p.cfg.ReservedSize {
		b := p.reserved[n-1]
		p.reserved[n-1] = nil
		p.reserved = p.reserved[:n-1]
		b.size = uint16(size)
		b.users = 1
		p.stats.Allocs++
		p.stats.Outstanding++
		p.stats.OutstandingBytes += cap(b.data)
		p.stats.ReservedHits++
		p.stats.ReservedFree = len(p.reserved)
		p.maintain(b)
		return b, nil
	}
	p.stats.ReservedMisses++
	return p.alloc(size, prio)
}

func (p *Pool) alloc(size int, prio Priority) (*Buffer, error) {
	if size <= 0 {
		p.stats.Failures++
		return nil, ErrZeroSize
	} else if size > MaxSize {
		p.stats.Failures++
		return nil, ErrTooLarge
	}
	asize := int(alignup(uint(size), p.align))
	if p.cfg.MaxBytes > 0 && p.stats.GeneralBytes+asize > p.cfg.MaxBytes {
		p.stats.Failures++
		return nil, ErrNoMemory
	}
	b := &Buffer{
		data:  make([]byte, size, asize),
		size:  uint16(size),
		prio:  prio,
		users: 1,
	}
	p.stats.Allocs++
	p.stats.Outstanding++
	p.stats.OutstandingBytes += asize
	p.stats.GeneralBytes += asize
	if prio != NoPriority {
		p.stats.Tiers[prio].Allocs++
		p.stats.Tiers[prio].Outstanding++
	}
	p.maintain(b)
	return b, nil
}

// AddUser increments the user count of b. The buffer is returned to the pool
// only after Free has been called once per user.
func (p *Pool) AddUser(b *Buffer) error {
	if b == nil {
		return ErrNilBuffer
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if b.users == 0 {
		return ErrDoubleFree
	}
	if b.users == 0xff {
		return ErrTooManyUsers
	}
	b.users++
	return nil
}

// Users returns the current user count of b.
func (p *Pool) Users(b *Buffer) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return int(b.users)
}

// Free drops one user of b. When the last user is dropped the buffer returns
// to the reserved list or the general allocator.
func (p *Pool) Free(b *Buffer) error {
	if b == nil {
		return ErrNilBuffer
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if b.users == 0 {
		return ErrDoubleFree
	}
	b.users--
	if b.users > 0 {
		return nil
	}
	p.maintain(b)
	p.stats.Frees++
	p.stats.Outstanding--
	p.stats.OutstandingBytes -= cap(b.data)
	if b.reserved {
		b.size = 0
		p.reserved = append(p.reserved, b)
		p.stats.ReservedFree = len(p.reserved)
		return nil
	}
	p.stats.GeneralBytes -= cap(b.data)
	if b.prio != NoPriority {
		p.stats.Tiers[b.prio].Outstanding--
	}
	b.data = nil
	b.size = 0
	return nil
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stats
	s.Tiers = append([]TierStats(nil), p.stats.Tiers...)
	return s
}

func (p *Pool) maintain(b *Buffer) {
	if p.cfg.CacheMaintenance != nil {
		p.cfg.CacheMaintenance(b.data[:cap(b.data)])
	}
}
