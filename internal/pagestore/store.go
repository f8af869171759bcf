// Package pagestore is the page store adapter (spec §4.1): fixed-size
// page reads/writes with shared/exclusive locking, backed by a single
// bbolt file. bbolt's own copy-on-write B+tree and mmap'd, fsync'd commit
// stand in for "the host's page-cache", the way the teacher's
// internal/memory/mmap.go stood in for a raw page cache, but with real
// transactional durability instead of a bare msync.
package pagestore

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	"go.etcd.io/bbolt"
	"golang.org/x/sys/unix"
)

var pagesBucket = []byte("pages")
var freeBucket = []byte("free")
var nextPageKey = []byte("\x00next")

// MetaPageNo is the page number reserved for the meta page (spec §3).
const MetaPageNo uint32 = 0

// Store is a single index's page file.
type Store struct {
	db   *bbolt.DB
	file *os.File // flock'd to keep two Stores from opening the same file
	mu   sync.Mutex
}

// Open opens (creating if necessary) the page file at path.
func Open(path string) (*Store, error) {
	f, err := os.OpenFile(path+".lock", os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("hnsw: open lock file: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("hnsw: index file %s already open by another process: %w", path, err)
	}

	db, err := bbolt.Open(path, 0644, nil)
	if err != nil {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
		return nil, fmt.Errorf("hnsw: open page store: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(pagesBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(freeBucket)
		return err
	})
	if err != nil {
		db.Close()
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
		return nil, fmt.Errorf("hnsw: init page bucket: %w", err)
	}

	return &Store{db: db, file: f}, nil
}

// Close releases the flock and closes the underlying bbolt database.
func (s *Store) Close() error {
	err := s.db.Close()
	unix.Flock(int(s.file.Fd()), unix.LOCK_UN)
	s.file.Close()
	return err
}

func pageKey(page uint32) []byte {
	k := make([]byte, 4)
	binary.BigEndian.PutUint32(k, page)
	return k
}

// RelationSize returns the current number of pages, including page 0.
func (s *Store) RelationSize() (uint32, error) {
	var size uint32
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(pagesBucket)
		raw := b.Get(nextPageKey)
		if raw == nil {
			size = 0
			if b.Get(pageKey(MetaPageNo)) != nil {
				size = 1
			}
			return nil
		}
		size = binary.LittleEndian.Uint32(raw)
		return nil
	})
	return size, err
}

// Guard scopes a single page lock (spec §4.1, §5: "scoped guards"). The
// zero value is not usable; obtain one from ReadShared/ReadExclusive/Extend.
// Release must be called exactly once on every exit path, including on
// error — deferring it immediately after acquisition is the idiomatic
// pattern used throughout internal/graph.
type Guard struct {
	store    *Store
	page     uint32
	data     []byte
	writable bool
	tx       *bbolt.Tx
	dirty    bool
	released bool
}

// Page returns the page number this guard holds.
func (g *Guard) Page() uint32 { return g.page }

// Data returns a copy of the page's current bytes. Changes made to the
// returned slice are not persisted; on an exclusive guard, Put writes
// new bytes for the page.
func (g *Guard) Data() []byte { return g.data }

// IsEmpty reports whether the page holds no item (spec invariant 1).
func (g *Guard) IsEmpty() bool { return len(g.data) == 0 }

// Put replaces the page's stored bytes. Only valid on an exclusive guard.
func (g *Guard) Put(data []byte) error {
	if !g.writable {
		return fmt.Errorf("hnsw: Put called on a shared (read-only) guard for page %d", g.page)
	}
	b := g.tx.Bucket(pagesBucket)
	if err := b.Put(pageKey(g.page), data); err != nil {
		return fmt.Errorf("hnsw: write page %d: %w", g.page, err)
	}
	g.data = data
	g.dirty = true
	return nil
}

// MarkDirty exists for interface parity with spec §4.1's mark_dirty(guard);
// under bbolt, every Put inside an Update transaction is already durable
// on commit, so this is a no-op kept so call sites read the way the spec
// describes them.
func (g *Guard) MarkDirty() { g.dirty = true }

// Release ends the guard's underlying transaction: commits an exclusive
// guard (persisting any Put calls), or rolls back a shared guard (always
// a no-op mutation). Safe to call multiple times.
func (g *Guard) Release() error {
	if g.released {
		return nil
	}
	g.released = true
	if g.writable {
		return g.tx.Commit()
	}
	return g.tx.Rollback()
}

// ReadShared acquires a page under a shared (read-only) lock. Callers
// must treat out-of-range page numbers as errors before calling, per
// spec §4.1; ReadShared itself returns an error for a page past the
// current relation size.
func (s *Store) ReadShared(page uint32) (*Guard, error) {
	tx, err := s.db.Begin(false)
	if err != nil {
		return nil, fmt.Errorf("hnsw: begin shared txn: %w", err)
	}
	b := tx.Bucket(pagesBucket)
	data := b.Get(pageKey(page))
	if data == nil {
		tx.Rollback()
		return nil, fmt.Errorf("hnsw: page %d does not exist", page)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return &Guard{store: s, page: page, data: cp, writable: false, tx: tx}, nil
}

// ReadExclusive acquires a page under an exclusive (write) lock.
func (s *Store) ReadExclusive(page uint32) (*Guard, error) {
	tx, err := s.db.Begin(true)
	if err != nil {
		return nil, fmt.Errorf("hnsw: begin exclusive txn: %w", err)
	}
	b := tx.Bucket(pagesBucket)
	data := b.Get(pageKey(page))
	if data == nil {
		tx.Rollback()
		return nil, fmt.Errorf("hnsw: page %d does not exist", page)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return &Guard{store: s, page: page, data: cp, writable: true, tx: tx}, nil
}

// Extend allocates a page for a new node and returns it, already held
// exclusively, with an empty body. The caller must Put the encoded node
// before Release. A page released by FreePage is reused before the
// relation is grown, so VacuumCleanup's reclaimed space is put back to
// work by the next insert (spec §9 supplemented bulk-delete behavior).
func (s *Store) Extend() (*Guard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin(true)
	if err != nil {
		return nil, fmt.Errorf("hnsw: begin extend txn: %w", err)
	}
	b := tx.Bucket(pagesBucket)
	fb := tx.Bucket(freeBucket)

	if page, ok, err := popFree(fb); err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("hnsw: pop free page: %w", err)
	} else if ok {
		if err := b.Put(pageKey(page), []byte{}); err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("hnsw: reinitialize freed page %d: %w", page, err)
		}
		return &Guard{store: s, page: page, data: nil, writable: true, tx: tx}, nil
	}

	var next uint32 = 1
	if raw := b.Get(nextPageKey); raw != nil {
		next = binary.LittleEndian.Uint32(raw)
	}

	nextBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(nextBuf, next+1)
	if err := b.Put(nextPageKey, nextBuf); err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("hnsw: advance page counter: %w", err)
	}
	if err := b.Put(pageKey(next), []byte{}); err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("hnsw: initialize new page %d: %w", next, err)
	}

	return &Guard{store: s, page: next, data: nil, writable: true, tx: tx}, nil
}

// FreePage returns page to the free list for reuse by a later Extend,
// used by VacuumCleanup once a tombstoned node's edges have all been
// unlinked.
func (s *Store) FreePage(page uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Update(func(tx *bbolt.Tx) error {
		fb := tx.Bucket(freeBucket)
		return fb.Put(pageKey(page), []byte{1})
	})
}

func popFree(fb *bbolt.Bucket) (uint32, bool, error) {
	c := fb.Cursor()
	k, _ := c.First()
	if k == nil {
		return 0, false, nil
	}
	page := binary.BigEndian.Uint32(k)
	if err := fb.Delete(k); err != nil {
		return 0, false, err
	}
	return page, true, nil
}

// WriteMeta writes the meta page (page 0) under its own exclusive
// transaction, released before the caller takes any other page lock, per
// spec §5 lock discipline rule 1.
func (s *Store) WriteMeta(data []byte) error {
	tx, err := s.db.Begin(true)
	if err != nil {
		return fmt.Errorf("hnsw: begin meta txn: %w", err)
	}
	b := tx.Bucket(pagesBucket)
	if err := b.Put(pageKey(MetaPageNo), data); err != nil {
		tx.Rollback()
		return fmt.Errorf("hnsw: write meta page: %w", err)
	}
	return tx.Commit()
}

// ReadMeta reads the meta page under a shared transaction.
func (s *Store) ReadMeta() ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(pagesBucket)
		raw := b.Get(pageKey(MetaPageNo))
		if raw == nil {
			return fmt.Errorf("hnsw: meta page not initialized")
		}
		data = make([]byte, len(raw))
		copy(data, raw)
		return nil
	})
	return data, err
}

// InitMeta writes an initial meta page if one does not already exist.
// Returns true if it initialized a fresh meta page.
func (s *Store) InitMeta(data []byte) (bool, error) {
	var initialized bool
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(pagesBucket)
		if existing := b.Get(pageKey(MetaPageNo)); existing != nil {
			return nil
		}
		initialized = true
		return b.Put(pageKey(MetaPageNo), data)
	})
	return initialized, err
}
