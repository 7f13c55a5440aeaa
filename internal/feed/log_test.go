package feed_test

import (
	"fmt"
	"testing"

	"github.com/gyaneshwarpardhi/livefeed/internal/activity"
	"github.com/gyaneshwarpardhi/livefeed/internal/feed"
)

func item(n int) activity.Item {
	return activity.Item{ID: fmt.Sprintf("tips:%d", n), Source: "tips", RowID: fmt.Sprint(n)}
}

func ids(items []activity.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.RowID
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRing_Eviction(t *testing.T) {
	r := feed.NewRing[int](3)
	for i := 1; i <= 3; i++ {
		if _, ok := r.Push(i); ok {
			t.Fatalf("push %d evicted before capacity", i)
		}
	}
	old, ok := r.Push(4)
	if !ok || old != 1 {
		t.Fatalf("evicted = %d/%v, want 1/true", old, ok)
	}
	got := r.Slice()
	if len(got) != 3 || got[0] != 2 || got[2] != 4 {
		t.Errorf("slice = %v, want [2 3 4]", got)
	}
}

func TestRing_Resize(t *testing.T) {
	r := feed.NewRing[int](4)
	for i := 1; i <= 6; i++ {
		r.Push(i)
	}
	r.Resize(2)
	if got := r.Slice(); len(got) != 2 || got[0] != 5 || got[1] != 6 {
		t.Errorf("shrink kept %v, want [5 6]", got)
	}
	r.Resize(5)
	r.Push(7)
	if got := r.Slice(); len(got) != 3 || got[2] != 7 {
		t.Errorf("grow = %v, want [5 6 7]", got)
	}
}

func TestLog_BoundedInAdmissionOrder(t *testing.T) {
	l := feed.NewLog(10)
	for i := 0; i < 25; i++ {
		l.Append(item(i))
		if l.Len() > 10 {
			t.Fatalf("len %d exceeds capacity after %d appends", l.Len(), i+1)
		}
	}
	want := []string{"15", "16", "17", "18", "19", "20", "21", "22", "23", "24"}
	if got := ids(l.Snapshot()); !equal(got, want) {
		t.Errorf("snapshot = %v, want %v", got, want)
	}
}

func TestLog_CallbacksAndSubscribers(t *testing.T) {
	l := feed.NewLog(2)
	var seen []string
	l.OnAppend(func(it activity.Item) { seen = append(seen, it.RowID) })

	sub := l.Subscribe(2)
	l.Append(item(1), item(2), item(3))

	if !equal(seen, []string{"1", "2", "3"}) {
		t.Errorf("callback saw %v", seen)
	}
	if got := []string{(<-sub.C()).RowID, (<-sub.C()).RowID}; !equal(got, []string{"1", "2"}) {
		t.Errorf("subscriber got %v", got)
	}
	if sub.Dropped() != 1 {
		t.Errorf("dropped = %d, want 1", sub.Dropped())
	}

	sub.Close()
	sub.Close()
	if _, ok := <-sub.C(); ok {
		t.Error("channel should be closed")
	}
	if l.Subscribers() != 0 {
		t.Errorf("subscribers = %d after close", l.Subscribers())
	}
	l.Append(item(4)) // must not panic on a closed subscription
}

func TestLog_CloseSubscriptions(t *testing.T) {
	l := feed.NewLog(4)
	a, b := l.Subscribe(1), l.Subscribe(1)
	l.CloseSubscriptions()
	for _, s := range []*feed.Subscription{a, b} {
		if _, ok := <-s.C(); ok {
			t.Errorf("subscription %s still open", s.ID())
		}
		s.Close()
	}
	if l.Subscribers() != 0 {
		t.Errorf("subscribers = %d", l.Subscribers())
	}
}
