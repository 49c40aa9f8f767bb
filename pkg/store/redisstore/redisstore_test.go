package redisstore

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T, opts ...Option) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, opts...), mr
}

func TestGetMissingKey(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	got, err := s.Get(context.Background(), "absent")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "" {
		t.Fatalf("got %q, want empty", got)
	}
}

func TestSetGetRoundTrip(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	if err := s.Set(context.Background(), "transcript", "hello world"); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := s.Get(context.Background(), "transcript")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "hello world" {
		t.Fatalf("got %q", got)
	}

	if err := s.Set(context.Background(), "transcript", "replaced"); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, _ = s.Get(context.Background(), "transcript")
	if got != "replaced" {
		t.Fatalf("got %q", got)
	}
}

func TestPrefixNamespacesKeys(t *testing.T) {
	t.Parallel()

	s, mr := newTestStore(t, WithPrefix("parley"))
	if err := s.Set(context.Background(), "transcript", "v"); err != nil {
		t.Fatalf("set: %v", err)
	}

	if !mr.Exists("parley:transcript") {
		t.Fatal("prefixed key not written")
	}
	if mr.Exists("transcript") {
		t.Fatal("unprefixed key leaked")
	}

	got, err := s.Get(context.Background(), "transcript")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "v" {
		t.Fatalf("got %q", got)
	}
}

func TestGetAfterBackendFailure(t *testing.T) {
	t.Parallel()

	s, mr := newTestStore(t)
	mr.Close()

	if _, err := s.Get(context.Background(), "k"); err == nil {
		t.Fatal("expected error with backend down")
	}
	if err := s.Set(context.Background(), "k", "v"); err == nil {
		t.Fatal("expected error with backend down")
	}
}

func TestDialValidation(t *testing.T) {
	t.Parallel()

	if _, err := Dial(""); err == nil {
		t.Fatal("expected error for empty addr")
	}
}
