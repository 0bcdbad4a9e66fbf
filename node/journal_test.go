package node

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/bosunlabs/bosun/core"
)

func TestJournalRoundTrip(t *testing.T) {
	ctx := context.Background()
	filename := filepath.Join(t.TempDir(), "node.db")

	j, err := NewJournal(filename)
	if err != nil {
		t.Fatal(err)
	}
	if err = j.Open(ctx); err != nil {
		t.Fatal(err)
	}
	defer j.Close(ctx)

	roster := []core.ServiceInfo{
		{Name: "timers", State: core.Started},
		{Name: "mq", State: core.Stopped},
	}
	if err := j.WriteRoster(ctx, roster); err != nil {
		t.Fatal(err)
	}

	back, err := j.ReadRoster(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(back) != 2 {
		t.Fatal(back)
	}
	if back[0].Name != "timers" || back[0].State != core.Started {
		t.Fatal(back[0])
	}
	if back[1].Name != "mq" || back[1].State != core.Stopped {
		t.Fatal(back[1])
	}
}

func TestJournalEntries(t *testing.T) {
	ctx := context.Background()
	filename := filepath.Join(t.TempDir(), "node.db")

	j, err := NewJournal(filename)
	if err != nil {
		t.Fatal(err)
	}
	if err = j.Open(ctx); err != nil {
		t.Fatal(err)
	}
	defer j.Close(ctx)

	for i, topic := range []string{"a", "b", "a"} {
		env := core.Envelope{Topic: topic, Payload: float64(i)}
		if err := j.Append(ctx, env); err != nil {
			t.Fatal(err)
		}
	}

	all, err := j.Entries(ctx, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatal(all)
	}
	// Oldest first, sequence assigned in order.
	if all[0].Seq != 1 || all[0].Topic != "a" || all[0].Payload != 0.0 {
		t.Fatalf("%#v", all[0])
	}

	as, err := j.Entries(ctx, "a", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(as) != 2 || as[1].Payload != 2.0 {
		t.Fatal(as)
	}

	limited, err := j.Entries(ctx, "", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 2 {
		t.Fatal(limited)
	}
}

func TestJournalNil(t *testing.T) {
	ctx := context.Background()
	var j *Journal

	// A node without a journal calls these anyway; they must all
	// be no-ops.
	if err := j.Open(ctx); err != nil {
		t.Fatal(err)
	}
	if err := j.Append(ctx, core.Envelope{Topic: "t"}); err != nil {
		t.Fatal(err)
	}
	if err := j.WriteRoster(ctx, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := j.ReadRoster(ctx); err != nil {
		t.Fatal(err)
	}
	if err := j.Close(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestNodeWithJournal(t *testing.T) {
	ctx := context.Background()
	filename := filepath.Join(t.TempDir(), "node.db")

	n, err := NewNode(ctx, "journaled", filename)
	if err != nil {
		t.Fatal(err)
	}

	if err := n.AddService(ctx, &testService{name: "echo"}); err != nil {
		t.Fatal(err)
	}
	n.Publish(ctx, "news", "it happened")

	entries, err := n.Journal().Entries(ctx, "news", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Payload != "it happened" {
		t.Fatal(entries)
	}

	roster, err := n.Journal().ReadRoster(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(roster) != 1 || roster[0].Name != "echo" {
		t.Fatal(roster)
	}

	if err := n.Stop(ctx); err != nil {
		t.Fatal(err)
	}
}
