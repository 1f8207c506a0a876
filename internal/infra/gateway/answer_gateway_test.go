package gateway

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/bradfitz/gomemcache/memcache"
)

// fakeMemcached speaks the subset of the memcached text protocol the gateway uses.
type fakeMemcached struct {
	mu    sync.Mutex
	items map[string][]byte
}

func newAnswerGateway(t *testing.T) (*AnswerGateway, *fakeMemcached) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	fake := &fakeMemcached{items: make(map[string][]byte)}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go fake.serve(conn)
		}
	}()
	return NewAnswerGateway(memcache.New(ln.Addr().String()), 60), fake
}

func (f *fakeMemcached) evict(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, key)
}

func (f *fakeMemcached) serve(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		f.mu.Lock()
		switch fields[0] {
		case "get", "gets":
			for _, key := range fields[1:] {
				if value, ok := f.items[key]; ok {
					fmt.Fprintf(w, "VALUE %s 0 %d 1\r\n%s\r\n", key, len(value), value)
				}
			}
			w.WriteString("END\r\n")
		case "set", "add":
			size, _ := strconv.Atoi(fields[4])
			data := make([]byte, size+2)
			if _, err := io.ReadFull(r, data); err != nil {
				f.mu.Unlock()
				return
			}
			if _, exists := f.items[fields[1]]; exists && fields[0] == "add" {
				w.WriteString("NOT_STORED\r\n")
				break
			}
			f.items[fields[1]] = data[:size]
			w.WriteString("STORED\r\n")
		case "incr":
			value, ok := f.items[fields[1]]
			if !ok {
				w.WriteString("NOT_FOUND\r\n")
				break
			}
			current, _ := strconv.ParseUint(string(value), 10, 64)
			delta, _ := strconv.ParseUint(fields[2], 10, 64)
			next := strconv.FormatUint(current+delta, 10)
			f.items[fields[1]] = []byte(next)
			w.WriteString(next + "\r\n")
		default:
			w.WriteString("ERROR\r\n")
		}
		f.mu.Unlock()

		if err := w.Flush(); err != nil {
			return
		}
	}
}

func mustGet(t *testing.T, g *AnswerGateway, form string, entities []string) ([]byte, string) {
	t.Helper()
	snapshot, version, err := g.Get(context.Background(), form, entities)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if version == "" {
		t.Fatalf("expected a version for %s", form)
	}
	return snapshot, version
}

func mustSet(t *testing.T, g *AnswerGateway, version, snapshot string) {
	t.Helper()
	if err := g.Set(context.Background(), version, []byte(snapshot)); err != nil {
		t.Fatalf("set: %v", err)
	}
}

func TestAnswerGatewayMissThenHit(t *testing.T) {
	g, _ := newAnswerGateway(t)
	entities := []string{"sites:s1", "projects:p1"}

	snapshot, version := mustGet(t, g, "form-1", entities)
	if snapshot != nil {
		t.Fatalf("expected a miss, got %s", snapshot)
	}
	mustSet(t, g, version, `{"q":"a"}`)

	snapshot, again := mustGet(t, g, "form-1", []string{"projects:p1", "sites:s1"})
	if string(snapshot) != `{"q":"a"}` {
		t.Fatalf("expected a hit regardless of entity order, got %s", snapshot)
	}
	if again != version {
		t.Fatalf("expected a stable version, got %s and %s", version, again)
	}

	if err := g.Set(context.Background(), "answers-gen:sites:s1", []byte("1")); err == nil {
		t.Fatalf("expected a generation key to be refused as a version")
	}
}

func TestAnswerGatewayInvalidateOrphansEveryForm(t *testing.T) {
	g, _ := newAnswerGateway(t)
	ctx := context.Background()

	_, first := mustGet(t, g, "form-1", []string{"sites:s1"})
	mustSet(t, g, first, `{"form":1}`)
	_, second := mustGet(t, g, "form-2", []string{"sites:s1", "projects:p1"})
	mustSet(t, g, second, `{"form":2}`)
	_, other := mustGet(t, g, "form-1", []string{"sites:s2"})
	mustSet(t, g, other, `{"site":2}`)

	if err := g.Invalidate(ctx, []string{"sites:s1"}); err != nil {
		t.Fatalf("invalidate: %v", err)
	}

	if snapshot, _ := mustGet(t, g, "form-1", []string{"sites:s1"}); snapshot != nil {
		t.Fatalf("expected form-1 to be orphaned, got %s", snapshot)
	}
	if snapshot, _ := mustGet(t, g, "form-2", []string{"sites:s1", "projects:p1"}); snapshot != nil {
		t.Fatalf("expected form-2 to be orphaned, got %s", snapshot)
	}
	if snapshot, _ := mustGet(t, g, "form-1", []string{"sites:s2"}); string(snapshot) != `{"site":2}` {
		t.Fatalf("expected the untouched site to stay cached, got %s", snapshot)
	}
}

func TestAnswerGatewaySnapshotCollectedDuringSyncIsDropped(t *testing.T) {
	g, _ := newAnswerGateway(t)
	entities := []string{"sites:s1"}

	_, version := mustGet(t, g, "form-1", entities)
	if err := g.Invalidate(context.Background(), entities); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	mustSet(t, g, version, `{"q":"pre-sync"}`)

	if snapshot, _ := mustGet(t, g, "form-1", entities); snapshot != nil {
		t.Fatalf("expected the pre-sync snapshot to stay unreachable, got %s", snapshot)
	}
}

func TestAnswerGatewayEvictedGenerationIsReseeded(t *testing.T) {
	g, fake := newAnswerGateway(t)
	ctx := context.Background()
	entities := []string{"sites:s1"}

	_, version := mustGet(t, g, "form-1", entities)
	mustSet(t, g, version, `{"q":"old"}`)
	if err := g.Invalidate(ctx, entities); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	fake.evict(generationPrefix + "sites:s1")

	if snapshot, _ := mustGet(t, g, "form-1", entities); snapshot != nil {
		t.Fatalf("expected the evicted counter not to revive an old snapshot, got %s", snapshot)
	}

	fake.evict(generationPrefix + "sites:s1")
	if err := g.Invalidate(ctx, entities); err != nil {
		t.Fatalf("invalidate without a counter: %v", err)
	}
}
