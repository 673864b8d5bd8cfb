package ratelimit

import (
	"testing"
	"time"
)

func TestAllowWithinBurst(t *testing.T) {
	l := New(60, 3, time.Minute)
	defer l.Close()

	for i := 0; i < 3; i++ {
		if !l.Allow("u1") {
			t.Fatalf("request %d within burst denied", i)
		}
	}
	if l.Allow("u1") {
		t.Fatalf("request beyond burst allowed")
	}
}

func TestUsersAreIndependent(t *testing.T) {
	l := New(60, 1, time.Minute)
	defer l.Close()

	if !l.Allow("u1") {
		t.Fatalf("u1 first request denied")
	}
	if l.Allow("u1") {
		t.Fatalf("u1 second request allowed")
	}
	if !l.Allow("u2") {
		t.Fatalf("u2 throttled by u1's bucket")
	}
}

func TestReset(t *testing.T) {
	l := New(60, 1, time.Minute)
	defer l.Close()

	l.Allow("u1")
	if l.Allow("u1") {
		t.Fatalf("bucket not exhausted")
	}
	l.Reset()
	if !l.Allow("u1") {
		t.Fatalf("reset did not restore the bucket")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	l := New(60, 1, time.Minute)
	l.Close()
	l.Close()
}
