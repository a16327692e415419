package server

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMailbox(t *testing.T) {
	m := newMailbox()

	for i := 0; i < 100; i++ {
		if !m.push(i) {
			t.Fatalf("push(%d) failed on an open mailbox", i)
		}
	}
	m.close()
	if m.push(100) {
		t.Errorf("expected push to fail after close")
	}

	var got []int
	for {
		v, ok, done := m.pop()
		if done {
			break
		}
		if !ok {
			t.Fatalf("expected a closed mailbox to drain without waiting")
		}
		got = append(got, v.(int))
	}

	want := make([]int, 100)
	for i := range want {
		want[i] = i
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("items popped out of order; diff:\n%s", diff)
	}

	select {
	case <-m.ready:
	default:
		t.Errorf("expected close to signal readiness")
	}
}
