package events

import (
	"testing"
	"time"
)

func TestStoreAppendReadAndFilters(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	s := NewStore()

	base := time.Now().Add(-2 * time.Hour).UTC()
	seed := []Event{
		{Timestamp: base, HostAlias: "cluster", Hostname: "cluster.internal", EventType: "starting"},
		{Timestamp: base.Add(10 * time.Minute), HostAlias: "cluster", Hostname: "cluster.internal", EventType: "serving"},
		{Timestamp: base.Add(20 * time.Minute), Hostname: "10.0.0.7", EventType: "failed", Message: "ssh dial: refused"},
	}
	for _, evt := range seed {
		if err := s.Append(evt); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	all, err := s.Read(Query{})
	if err != nil {
		t.Fatalf("read all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 events, got %d", len(all))
	}

	aliasOnly, err := s.Read(Query{HostAlias: "cluster"})
	if err != nil {
		t.Fatalf("read alias: %v", err)
	}
	if len(aliasOnly) != 2 {
		t.Fatalf("expected 2 cluster events, got %d", len(aliasOnly))
	}

	limited, err := s.Read(Query{Limit: 1})
	if err != nil {
		t.Fatalf("read limit: %v", err)
	}
	if len(limited) != 1 || limited[0].EventType != "failed" {
		t.Fatalf("unexpected limited result: %+v", limited)
	}

	since, err := s.Read(Query{Since: base.Add(15 * time.Minute)})
	if err != nil {
		t.Fatalf("read since: %v", err)
	}
	if len(since) != 1 || since[0].EventType != "failed" {
		t.Fatalf("unexpected since result: %+v", since)
	}
}

func TestReadMissingJournal(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	out, err := NewStore().Read(Query{})
	if err != nil {
		t.Fatal(err)
	}
	if out != nil {
		t.Fatalf("expected no events, got %+v", out)
	}
}
