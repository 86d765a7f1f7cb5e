package docstore

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	return store, s
}

func TestRedisGetMissingKey(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	raw, err := store.Get(context.Background(), "no_such_key")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if raw != nil {
		t.Errorf("expected nil for missing key, got %s", raw)
	}
}

func TestRedisSetGetRoundTrip(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	in := []Record{{"targa": "AB123CD"}, {"targa": "EF456GH"}}
	if err := store.Set(ctx, KeyVehicles, in); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	raw, err := store.Get(ctx, KeyVehicles)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	out := UnwrapList(raw)
	if len(out) != 2 {
		t.Fatalf("expected 2 records, got %d", len(out))
	}
	if out[0]["targa"] != "AB123CD" {
		t.Errorf("unexpected first record: %v", out[0])
	}
}

func TestUnwrapList(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want int
	}{
		{"direct array", `[{"a":1},{"b":2}]`, 2},
		{"wrapped array", `{"value":[{"a":1}]}`, 1},
		{"wrapped empty", `{"value":[]}`, 0},
		{"wrapped null", `{"value":null}`, 0},
		{"scalar", `42`, 0},
		{"string", `"hello"`, 0},
		{"object without value", `{"other":true}`, 0},
		{"null entries dropped", `[null,{"a":1},null]`, 1},
		{"empty input", ``, 0},
		{"garbage", `{not json`, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := UnwrapList(json.RawMessage(tc.raw))
			if len(got) != tc.want {
				t.Errorf("UnwrapList(%s) = %d records, want %d", tc.raw, len(got), tc.want)
			}
		})
	}
}

func TestReadListDegradesToEmpty(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()

	// Kill the backend: reads must degrade to an empty list, not error out.
	s.Close()
	got := ReadList(context.Background(), store, KeySessions)
	if len(got) != 0 {
		t.Errorf("expected empty list from unavailable store, got %d records", len(got))
	}
}
