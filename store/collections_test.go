package store

import (
	"slices"
	"testing"
	"time"
)

func TestHashFieldUniqueness(t *testing.T) {
	s, _ := newTestStore()

	isNew, err := s.HSet("h", "f", "1")
	if err != nil || !isNew {
		t.Fatalf("first HSet: new=%v err=%v", isNew, err)
	}
	isNew, _ = s.HSet("h", "f", "2")
	if isNew {
		t.Fatal("second HSet on same field reported new")
	}

	v, ok, _ := s.HGet("h", "f")
	if !ok || v != "2" {
		t.Fatalf("HGet: got %q ok=%v", v, ok)
	}
	if n, _ := s.HLen("h"); n != 1 {
		t.Fatalf("HLen = %d, want 1", n)
	}
}

func TestHashGetAllIsCopy(t *testing.T) {
	s, _ := newTestStore()
	if _, err := s.HSetMany("h", map[string]string{"a": "1", "b": "2"}); err != nil {
		t.Fatal(err)
	}
	all, _ := s.HGetAll("h")
	all["c"] = "3"

	if n, _ := s.HLen("h"); n != 2 {
		t.Fatalf("HGetAll leaked internal map, HLen = %d", n)
	}

	empty, err := s.HGetAll("missing")
	if err != nil || empty == nil || len(empty) != 0 {
		t.Fatalf("HGetAll missing: %v %v", empty, err)
	}
}

func TestHashDelLastFieldRemovesKey(t *testing.T) {
	s, _ := newTestStore()
	_, _ = s.HSet("h", "f", "v")

	n, err := s.HDel("h", "f", "nope")
	if err != nil || n != 1 {
		t.Fatalf("HDel: n=%d err=%v", n, err)
	}
	if s.Exists("h") {
		t.Fatal("empty hash should be removed")
	}
}

func TestListPushOrder(t *testing.T) {
	s, _ := newTestStore()

	if n, _ := s.LPush("l", "a", "b"); n != 2 {
		t.Fatalf("LPush len = %d", n)
	}
	if n, _ := s.RPush("l", "c"); n != 3 {
		t.Fatalf("RPush len = %d", n)
	}

	got, _ := s.LRange("l", 0, -1)
	want := []string{"b", "a", "c"}
	if !slices.Equal(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestListRangeIndexes(t *testing.T) {
	s, _ := newTestStore()
	_, _ = s.RPush("l", "0", "1", "2", "3", "4")

	cases := []struct {
		start, stop int
		want        []string
	}{
		{0, 1, []string{"0", "1"}},
		{-2, -1, []string{"3", "4"}},
		{3, 100, []string{"3", "4"}},
		{-100, 0, []string{"0"}},
		{4, 2, []string{}},
		{10, 20, []string{}},
	}
	for _, c := range cases {
		got, err := s.LRange("l", c.start, c.stop)
		if err != nil {
			t.Fatal(err)
		}
		if !slices.Equal(got, c.want) {
			t.Fatalf("LRange(%d, %d) = %v, want %v", c.start, c.stop, got, c.want)
		}
	}
}

func TestListTrim(t *testing.T) {
	s, _ := newTestStore()
	_, _ = s.RPush("l", "a", "b", "c", "d")

	if err := s.LTrim("l", 0, 1); err != nil {
		t.Fatal(err)
	}
	got, _ := s.LRange("l", 0, -1)
	if !slices.Equal(got, []string{"a", "b"}) {
		t.Fatalf("after trim: %v", got)
	}

	if err := s.LTrim("l", 5, 10); err != nil {
		t.Fatal(err)
	}
	if s.Exists("l") {
		t.Fatal("trimming everything should remove the key")
	}
}

func TestSetUniqueness(t *testing.T) {
	s, _ := newTestStore()

	if n, _ := s.SAdd("s", "a"); n != 1 {
		t.Fatalf("first SAdd = %d", n)
	}
	if n, _ := s.SAdd("s", "a"); n != 0 {
		t.Fatalf("duplicate SAdd = %d", n)
	}

	members, _ := s.SMembers("s")
	if !slices.Equal(members, []string{"a"}) {
		t.Fatalf("SMembers = %v", members)
	}
	if ok, _ := s.SIsMember("s", "a"); !ok {
		t.Fatal("expected member")
	}
	if ok, _ := s.SIsMember("s", "b"); ok {
		t.Fatal("unexpected member")
	}
}

func TestSetRemLastMemberRemovesKey(t *testing.T) {
	s, _ := newTestStore()
	_, _ = s.SAdd("s", "a", "b")

	if n, _ := s.SRem("s", "a", "z"); n != 1 {
		t.Fatalf("SRem = %d", n)
	}
	if n, _ := s.SCard("s"); n != 1 {
		t.Fatalf("SCard = %d", n)
	}
	_, _ = s.SRem("s", "b")
	if s.Exists("s") {
		t.Fatal("empty set should be removed")
	}
}

func TestCollectionWritesKeepTTL(t *testing.T) {
	s, now := newTestStore()
	_, _ = s.SAdd("typing", "1")
	s.Expire("typing", 5*time.Second)

	*now = now.Add(3 * time.Second)
	_, _ = s.SAdd("typing", "2")

	*now = now.Add(2 * time.Second)
	if s.Exists("typing") {
		t.Fatal("SAdd must not refresh the TTL")
	}
}

func TestKindOf(t *testing.T) {
	s, _ := newTestStore()
	_, _ = s.RPush("l", "x")
	if k, ok := s.KindOf("l"); !ok || k != KindList {
		t.Fatalf("KindOf = %v ok=%v", k, ok)
	}
	if k := KindList.String(); k != "list" {
		t.Fatalf("String = %q", k)
	}
}
