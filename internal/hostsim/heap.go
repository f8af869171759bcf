// Package hostsim stands in for the relational heap table that a real
// embedding host (a SQL engine's table access method) would already
// provide. It exists only so the rest of this module can be exercised
// end to end without a live SQL host: a sqlite3-backed row store with a
// table-scan callback and a soft-delete flag, playing the role of the
// heap relation an index access method reads tuples from and asks
// "is this tid still alive?" about during a bulk-delete pass.
package hostsim

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"

	_ "github.com/mattn/go-sqlite3"
)

// Heap is a minimal row store: a tid, its vector payload, and a
// soft-delete flag, grounded on original_source's separation between
// the heap (row storage) and the index (HNSW graph over heap tids).
type Heap struct {
	db *sql.DB
}

// Open opens (creating if necessary) a sqlite3-backed heap at path.
// Pass ":memory:" for an ephemeral heap in tests.
func Open(path string) (*Heap, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("hostsim: open sqlite heap: %w", err)
	}
	const schema = `
CREATE TABLE IF NOT EXISTS heap_tuples (
	tid     INTEGER PRIMARY KEY,
	vector  BLOB NOT NULL,
	deleted INTEGER NOT NULL DEFAULT 0
);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("hostsim: create schema: %w", err)
	}
	return &Heap{db: db}, nil
}

// Close closes the underlying sqlite3 connection.
func (h *Heap) Close() error { return h.db.Close() }

// Insert stores a new row. tid must be unique.
func (h *Heap) Insert(tid uint64, vector []float32) error {
	_, err := h.db.Exec(`INSERT INTO heap_tuples (tid, vector, deleted) VALUES (?, ?, 0)`,
		int64(tid), encodeVector(vector))
	if err != nil {
		return fmt.Errorf("hostsim: insert tid %d: %w", tid, err)
	}
	return nil
}

// MarkDeleted soft-deletes a row, the way a SQL engine's DELETE marks a
// heap tuple dead before the next VACUUM reclaims it.
func (h *Heap) MarkDeleted(tid uint64) error {
	res, err := h.db.Exec(`UPDATE heap_tuples SET deleted = 1 WHERE tid = ?`, int64(tid))
	if err != nil {
		return fmt.Errorf("hostsim: mark tid %d deleted: %w", tid, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("hostsim: rows affected for tid %d: %w", tid, err)
	}
	if n == 0 {
		return fmt.Errorf("hostsim: tid %d not found", tid)
	}
	return nil
}

// Alive reports whether tid exists and has not been soft-deleted. It is
// shaped to be passed directly as a graph.AliveFunc / hnswam BulkDelete
// callback.
func (h *Heap) Alive(tid uint64) bool {
	var deleted int
	err := h.db.QueryRow(`SELECT deleted FROM heap_tuples WHERE tid = ?`, int64(tid)).Scan(&deleted)
	if err != nil {
		return false
	}
	return deleted == 0
}

// Row is one tuple yielded by Scan.
type Row struct {
	TID    uint64
	Vector []float32
}

// Scan invokes fn once per non-deleted row, in tid order, grounded on
// the table-scan callback a host's ambuild/ambulkdelete implementation
// drives its index build from.
func (h *Heap) Scan(fn func(Row) error) error {
	rows, err := h.db.Query(`SELECT tid, vector FROM heap_tuples WHERE deleted = 0 ORDER BY tid`)
	if err != nil {
		return fmt.Errorf("hostsim: scan: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var tid int64
		var blob []byte
		if err := rows.Scan(&tid, &blob); err != nil {
			return fmt.Errorf("hostsim: scan row: %w", err)
		}
		if err := fn(Row{TID: uint64(tid), Vector: decodeVector(blob)}); err != nil {
			return err
		}
	}
	return rows.Err()
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v
}
