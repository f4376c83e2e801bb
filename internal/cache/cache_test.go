package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestMemoryStoreTTL(t *testing.T) {
	s := NewMemoryStore(MemoryConfig{})

	ctx := context.Background()
	key := "chat:llama3.2:v1:abc"

	if err := s.Set(ctx, key, []byte("hello"), 20*time.Millisecond); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, hit, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !hit {
		t.Fatalf("expected hit immediately after Set")
	}
	if string(got) != "hello" {
		t.Fatalf("expected 'hello', got %q", got)
	}

	time.Sleep(30 * time.Millisecond)

	_, hit, err = s.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get after TTL failed: %v", err)
	}
	if hit {
		t.Fatalf("expected miss after TTL expiry")
	}
}

func TestMemoryStoreZeroTTLDeletes(t *testing.T) {
	s := NewMemoryStore(MemoryConfig{})

	ctx := context.Background()
	_ = s.Set(ctx, "k", []byte("v"), time.Minute)
	_ = s.Set(ctx, "k", []byte("v"), 0)

	if s.Len() != 0 || s.Bytes() != 0 {
		t.Fatalf("expected zero ttl to delete the key, len=%d bytes=%d", s.Len(), s.Bytes())
	}
}

func TestMemoryStoreByteBudget(t *testing.T) {
	s := NewMemoryStore(MemoryConfig{MaxEntries: 10, MaxBytes: 10})
	ctx := context.Background()

	_ = s.Set(ctx, "a", []byte("aaaa"), time.Minute)
	_ = s.Set(ctx, "b", []byte("bbbb"), time.Minute)

	// touch a so b is the least recently used
	if _, hit, _ := s.Get(ctx, "a"); !hit {
		t.Fatalf("expected hit for a")
	}

	_ = s.Set(ctx, "c", []byte("cccc"), time.Minute)

	if _, hit, _ := s.Get(ctx, "b"); hit {
		t.Fatalf("expected b to be evicted over the byte budget")
	}
	for _, k := range []string{"a", "c"} {
		if _, hit, _ := s.Get(ctx, k); !hit {
			t.Fatalf("expected %s to survive", k)
		}
	}
	if s.Bytes() != 8 {
		t.Fatalf("expected 8 bytes held, got %d", s.Bytes())
	}

	// larger than the whole budget: skipped, nothing else evicted
	_ = s.Set(ctx, "huge", make([]byte, 11), time.Minute)
	if _, hit, _ := s.Get(ctx, "huge"); hit || s.Len() != 2 {
		t.Fatalf("oversized value must not be cached, len=%d", s.Len())
	}
}

func TestMemoryStoreEntryLimitAndReplace(t *testing.T) {
	s := NewMemoryStore(MemoryConfig{MaxEntries: 2, MaxBytes: 1 << 10})
	ctx := context.Background()

	_ = s.Set(ctx, "a", []byte("1"), time.Minute)
	_ = s.Set(ctx, "a", []byte("123"), time.Minute)
	if s.Len() != 1 || s.Bytes() != 3 {
		t.Fatalf("replace should keep one entry of 3 bytes, len=%d bytes=%d", s.Len(), s.Bytes())
	}

	_ = s.Set(ctx, "b", []byte("1"), time.Minute)
	_ = s.Set(ctx, "c", []byte("1"), time.Minute)
	if s.Len() != 2 || s.Bytes() != 2 {
		t.Fatalf("expected oldest entry evicted, len=%d bytes=%d", s.Len(), s.Bytes())
	}
	if _, hit, _ := s.Get(ctx, "a"); hit {
		t.Fatalf("expected a to be evicted")
	}
}

func TestBuildKeyStable(t *testing.T) {
	t.Parallel()

	body := map[string]any{"model": "llama3.2:latest", "messages": []string{"a"}}

	k1, err := BuildKey("chat", " llama3.2:latest ", "v1", body)
	if err != nil {
		t.Fatalf("BuildKey: %v", err)
	}
	k2, _ := BuildKey("chat", "llama3.2:latest", "v1", body)
	if k1 != k2 {
		t.Fatalf("expected identical keys, got %v and %v", k1, k2)
	}

	k3, _ := BuildKey("chat", "llama3.2:latest", "v2", body)
	if k1.Hash != k3.Hash || k1.String() == k3.String() {
		t.Fatalf("version must change the key but not the hash")
	}
}

func TestParseKeyWithColonModel(t *testing.T) {
	t.Parallel()

	key := Key{Kind: "completion", ModelID: "llama3.2:latest", VersionID: "v1", Hash: "deadbeef"}

	parts, ok := parseKey(key.String())
	if !ok {
		t.Fatalf("expected key to parse")
	}
	if parts.kind != "completion" || parts.modelID != "llama3.2:latest" || parts.versionID != "v1" || parts.hash != "deadbeef" {
		t.Fatalf("unexpected parts: %#v", parts)
	}

	if _, ok := parseKey("garbage"); ok {
		t.Fatalf("expected garbage key to be rejected")
	}
}

func TestNewStoreDefaultsToMemory(t *testing.T) {
	t.Parallel()

	s := NewStore(Config{Backend: "unknown"}, nil)
	if _, ok := s.(*MemoryStore); !ok {
		t.Fatalf("expected *MemoryStore, got %T", s)
	}
}

func TestRedisStoreShortCircuits(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer client.Close()

	s := NewRedisStore(client, RedisConfig{Prefix: "ollamagate"})
	if got := s.key("chat:m:v1:h"); got != "ollamagate:chat:m:v1:h" {
		t.Fatalf("unexpected prefixed key %q", got)
	}

	// zero ttl never reaches the server
	if err := s.Set(context.Background(), "k", []byte("v"), 0); err != nil {
		t.Fatalf("Set with zero ttl: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, hit, err := s.Get(ctx, "k"); err == nil || hit {
		t.Fatalf("expected context error, got hit=%v err=%v", hit, err)
	}
}

func TestNewStoreRedisBackend(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer client.Close()

	if _, ok := NewStore(Config{Backend: BackendRedis}, client).(*RedisStore); !ok {
		t.Fatalf("expected *RedisStore for the redis backend")
	}
}
