package tiered_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Strob0t/Sofia/internal/adapter/tiered"
)

// memCache is an in-memory tier. getErr simulates an unreachable backend.
type memCache struct {
	data   map[string][]byte
	getErr error
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]byte)}
}

func (m *memCache) Get(_ context.Context, key string) (data []byte, ok bool, err error) {
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.data[key] = value
	return nil
}

func (m *memCache) Delete(_ context.Context, key string) error {
	delete(m.data, key)
	return nil
}

const agentKey = "agent:tenant-1:ag-1"

func TestTiered_Get(t *testing.T) {
	tests := []struct {
		name         string
		inL1, inL2   bool
		l2Err        error
		wantFound    bool
		wantBackfill bool
	}{
		{name: "l1 hit", inL1: true, wantFound: true},
		{name: "l2 hit backfills l1", inL2: true, wantFound: true, wantBackfill: true},
		{name: "miss", wantFound: false},
		{name: "l2 down degrades to miss", l2Err: errors.New("nats: no responders"), wantFound: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l1, l2 := newMemCache(), newMemCache()
			l2.getErr = tt.l2Err
			if tt.inL1 {
				l1.data[agentKey] = []byte(`{"id":"ag-1"}`)
			}
			if tt.inL2 {
				l2.data[agentKey] = []byte(`{"id":"ag-1"}`)
			}

			val, found, err := tiered.New(l1, l2, time.Minute).Get(context.Background(), agentKey)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if found != tt.wantFound {
				t.Fatalf("found = %v, want %v", found, tt.wantFound)
			}
			if found && string(val) != `{"id":"ag-1"}` {
				t.Fatalf("value = %s", val)
			}
			if tt.wantBackfill {
				if _, ok := l1.data[agentKey]; !ok {
					t.Fatal("expected L1 backfill after L2 hit")
				}
			}
		})
	}
}

func TestTiered_WriteThroughAndEvict(t *testing.T) {
	l1, l2 := newMemCache(), newMemCache()
	c := tiered.New(l1, l2, time.Minute)
	ctx := context.Background()

	if err := c.Set(ctx, agentKey, []byte(`{"id":"ag-1"}`), time.Minute); err != nil {
		t.Fatal(err)
	}
	if _, ok := l1.data[agentKey]; !ok {
		t.Fatal("missing from L1")
	}
	if _, ok := l2.data[agentKey]; !ok {
		t.Fatal("missing from L2")
	}

	if err := c.Delete(ctx, agentKey); err != nil {
		t.Fatal(err)
	}
	if len(l1.data) != 0 || len(l2.data) != 0 {
		t.Fatalf("eviction left l1=%v l2=%v", l1.data, l2.data)
	}
}
