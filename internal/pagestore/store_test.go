package pagestore

import (
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "index.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestExtendThenReadRoundTrip(t *testing.T) {
	s := openTestStore(t)

	g, err := s.Extend()
	if err != nil {
		t.Fatalf("Extend: %v", err)
	}
	if g.Page() != 1 {
		t.Fatalf("first Extend should allocate page 1, got %d", g.Page())
	}
	if err := g.Put([]byte("hello")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := g.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	rg, err := s.ReadShared(1)
	if err != nil {
		t.Fatalf("ReadShared: %v", err)
	}
	defer rg.Release()
	if string(rg.Data()) != "hello" {
		t.Fatalf("got %q, want %q", rg.Data(), "hello")
	}
}

func TestReadSharedMissingPageErrors(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.ReadShared(99); err == nil {
		t.Fatal("expected error reading a page that was never allocated")
	}
}

func TestMetaInitIsIdempotent(t *testing.T) {
	s := openTestStore(t)

	first, err := s.InitMeta([]byte("meta-v1"))
	if err != nil {
		t.Fatalf("InitMeta: %v", err)
	}
	if !first {
		t.Fatal("first InitMeta call should report initialization")
	}

	second, err := s.InitMeta([]byte("meta-v2"))
	if err != nil {
		t.Fatalf("InitMeta: %v", err)
	}
	if second {
		t.Fatal("second InitMeta call should be a no-op")
	}

	data, err := s.ReadMeta()
	if err != nil {
		t.Fatalf("ReadMeta: %v", err)
	}
	if string(data) != "meta-v1" {
		t.Fatalf("meta page was overwritten: got %q", data)
	}
}

func TestExtendAllocatesSequentialPages(t *testing.T) {
	s := openTestStore(t)

	for i := uint32(1); i <= 5; i++ {
		g, err := s.Extend()
		if err != nil {
			t.Fatalf("Extend: %v", err)
		}
		if g.Page() != i {
			t.Fatalf("Extend #%d allocated page %d, want %d", i, g.Page(), i)
		}
		if err := g.Put([]byte{byte(i)}); err != nil {
			t.Fatalf("Put: %v", err)
		}
		if err := g.Release(); err != nil {
			t.Fatalf("Release: %v", err)
		}
	}

	size, err := s.RelationSize()
	if err != nil {
		t.Fatalf("RelationSize: %v", err)
	}
	if size != 6 {
		t.Fatalf("RelationSize = %d, want 6", size)
	}
}

func TestExclusiveGuardReleaseCommitsWrite(t *testing.T) {
	s := openTestStore(t)

	g, err := s.Extend()
	if err != nil {
		t.Fatalf("Extend: %v", err)
	}
	page := g.Page()
	if err := g.Put([]byte("v1")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	g.MarkDirty()
	if err := g.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	eg, err := s.ReadExclusive(page)
	if err != nil {
		t.Fatalf("ReadExclusive: %v", err)
	}
	if err := eg.Put([]byte("v2")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := eg.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	rg, err := s.ReadShared(page)
	if err != nil {
		t.Fatalf("ReadShared: %v", err)
	}
	defer rg.Release()
	if string(rg.Data()) != "v2" {
		t.Fatalf("got %q, want %q", rg.Data(), "v2")
	}
}
