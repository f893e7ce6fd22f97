package chat

import (
	"fmt"
	"sort"
	"testing"
	"time"
)

var testConnSeq int

func newTestConn(userID string) *Conn {
	testConnSeq++
	return NewConn(fmt.Sprintf("conn-%d", testConnSeq), userID, nil, 16)
}

func recvPayload(t *testing.T, c *Conn) []byte {
	t.Helper()
	select {
	case p := <-c.send:
		return p
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for a push on conn %s", c.ConnID)
		return nil
	}
}

func expectNoPayload(t *testing.T, c *Conn) {
	t.Helper()
	select {
	case p := <-c.send:
		t.Fatalf("unexpected push on conn %s: %s", c.ConnID, p)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRegisterUnregisterOnlineSet(t *testing.T) {
	reg := NewRegistry()

	a1 := newTestConn("alice")
	a2 := newTestConn("alice")
	b1 := newTestConn("bob")

	reg.Register(a1)
	reg.Register(a2)
	reg.Register(b1)

	got := reg.AllOnlineUserIDs()
	sort.Strings(got)
	want := []string{"alice", "bob"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("online set = %v, want %v", got, want)
	}

	// One of alice's two devices leaves: still online.
	reg.Unregister(a1)
	if !reg.IsOnline("alice") {
		t.Fatal("alice should stay online while one device remains")
	}
	if n := len(reg.ConnectionsFor("alice")); n != 1 {
		t.Fatalf("alice has %d connections, want 1", n)
	}

	reg.Unregister(a2)
	if reg.IsOnline("alice") {
		t.Fatal("alice should be offline after the last device leaves")
	}
	if conns := reg.ConnectionsFor("alice"); conns != nil {
		t.Fatalf("expected no connections, got %v", conns)
	}
}

func TestRegisterIdempotentPerConn(t *testing.T) {
	reg := NewRegistry()
	c := newTestConn("alice")
	reg.Register(c)
	reg.Register(c)
	if n := len(reg.ConnectionsFor("alice")); n != 1 {
		t.Fatalf("duplicate Register produced %d connections, want 1", n)
	}
}

func TestUnregisterAbsentConnIsNoop(t *testing.T) {
	reg := NewRegistry()
	c := newTestConn("alice")
	reg.Unregister(c) // never registered
	reg.Register(c)
	reg.Unregister(c)
	reg.Unregister(c) // double disconnect race
	if reg.IsOnline("alice") {
		t.Fatal("alice should be offline")
	}
}

func TestPresenceNotifierFiresOnMembershipChangeOnly(t *testing.T) {
	reg := NewRegistry()
	type change struct {
		user   string
		online bool
	}
	var changes []change
	reg.SetPresenceNotifier(func(userID string, online bool) {
		changes = append(changes, change{userID, online})
	})

	a1 := newTestConn("alice")
	a2 := newTestConn("alice")
	reg.Register(a1) // offline -> online
	reg.Register(a2) // second device, no transition
	reg.Unregister(a1)
	reg.Unregister(a2) // online -> offline

	want := []change{{"alice", true}, {"alice", false}}
	if len(changes) != len(want) {
		t.Fatalf("got %d presence changes %v, want %v", len(changes), changes, want)
	}
	for i := range want {
		if changes[i] != want[i] {
			t.Fatalf("change[%d] = %v, want %v", i, changes[i], want[i])
		}
	}
}

func TestConcurrentRegisterSameUser(t *testing.T) {
	reg := NewRegistry()
	const n = 32
	conns := make([]*Conn, n)
	for i := range conns {
		conns[i] = newTestConn("alice")
	}
	done := make(chan struct{})
	for _, c := range conns {
		go func(c *Conn) {
			reg.Register(c)
			done <- struct{}{}
		}(c)
	}
	for i := 0; i < n; i++ {
		<-done
	}
	if got := len(reg.ConnectionsFor("alice")); got != n {
		t.Fatalf("lost updates: %d connections registered, want %d", got, n)
	}
}
