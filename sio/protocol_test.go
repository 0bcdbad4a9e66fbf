package sio

import (
	"bufio"
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/bosunlabs/bosun/core"
	"github.com/bosunlabs/bosun/node"
)

func newTestNode(t *testing.T) *node.Node {
	t.Helper()

	n, err := node.NewNode(context.Background(), "test", "")
	if err != nil {
		t.Fatal(err)
	}

	echo := core.NewDef("echo").
		Action("echo", func(ctx context.Context, ps *core.Params) (interface{}, error) {
			return ps.GetString("say", ""), nil
		})

	if err := n.AddService(context.Background(), echo); err != nil {
		t.Fatal(err)
	}

	return n
}

func newTestSession(t *testing.T) (*Session, *[]interface{}) {
	t.Helper()

	emitted := make([]interface{}, 0, 8)
	sess := NewSession(newTestNode(t), func(x interface{}) bool {
		emitted = append(emitted, x)
		return true
	})
	return sess, &emitted
}

func TestOpRequest(t *testing.T) {
	ctx := context.Background()
	sess, _ := newTestSession(t)

	op := NOp{
		Request: &OpRequest{
			Path:   "echo",
			Action: "echo",
			Params: core.NewParams().Set("say", "hello"),
		},
	}
	if err := op.Do(ctx, sess); err != nil {
		t.Fatal(err)
	}
	if op.Request.Err != "" {
		t.Fatal(op.Request.Err)
	}
	if op.Request.Value != "hello" {
		t.Fatal(op.Request.Value)
	}
}

func TestOpRequestTrouble(t *testing.T) {
	ctx := context.Background()
	sess, _ := newTestSession(t)

	// Routing trouble rides along in the op, not as a Go error.
	op := NOp{
		Request: &OpRequest{Path: "ghost", Action: "any"},
	}
	if err := op.Do(ctx, sess); err != nil {
		t.Fatal(err)
	}
	if op.Request.Err == "" {
		t.Fatal("expected an error report")
	}
}

func TestOpPubSub(t *testing.T) {
	ctx := context.Background()
	sess, emitted := newTestSession(t)

	sub := NOp{
		Subscribe: &OpSubscribe{Topic: "news", Id: "s1"},
	}
	if err := sub.Do(ctx, sess); err != nil {
		t.Fatal(err)
	}

	pub := NOp{
		Publish: &OpPublish{Topic: "news", Payload: "extra extra"},
	}
	if err := pub.Do(ctx, sess); err != nil {
		t.Fatal(err)
	}

	if len(*emitted) != 1 {
		t.Fatal(*emitted)
	}
	event := (*emitted)[0].(map[string]interface{})["event"].(map[string]interface{})
	if event["id"] != "s1" || event["topic"] != "news" || event["payload"] != "extra extra" {
		t.Fatal(event)
	}

	unsub := NOp{
		Unsubscribe: &OpUnsubscribe{Id: "s1"},
	}
	if err := unsub.Do(ctx, sess); err != nil {
		t.Fatal(err)
	}

	if err := pub.Do(ctx, sess); err != nil {
		t.Fatal(err)
	}
	if len(*emitted) != 1 {
		t.Fatal("subscription should be gone")
	}

	// Cancelling again is an error (the id is unknown now).
	again := NOp{
		Unsubscribe: &OpUnsubscribe{Id: "s1"},
	}
	if err := again.Do(ctx, sess); err == nil {
		t.Fatal("expected a complaint")
	}
	if again.Err == "" {
		t.Fatal("Err should be populated")
	}
}

func TestOpSubscribeGeneratesId(t *testing.T) {
	ctx := context.Background()
	sess, _ := newTestSession(t)

	op := NOp{
		Subscribe: &OpSubscribe{Topic: "news"},
	}
	if err := op.Do(ctx, sess); err != nil {
		t.Fatal(err)
	}
	if op.Subscribe.Id == "" {
		t.Fatal("no id generated")
	}
}

func TestOpRoster(t *testing.T) {
	ctx := context.Background()
	sess, _ := newTestSession(t)

	op := NOp{
		Roster: &OpRoster{},
	}
	if err := op.Do(ctx, sess); err != nil {
		t.Fatal(err)
	}
	if len(op.Roster.Services) != 1 || op.Roster.Services[0].Name != "echo" {
		t.Fatal(op.Roster.Services)
	}
}

func TestOpJournalWithoutJournal(t *testing.T) {
	ctx := context.Background()
	sess, _ := newTestSession(t)

	op := NOp{
		Journal: &OpJournal{},
	}
	if err := op.Do(ctx, sess); err == nil {
		t.Fatal("expected a complaint")
	}
}

func TestOpEmpty(t *testing.T) {
	ctx := context.Background()
	sess, _ := newTestSession(t)

	op := NOp{}
	if err := op.Do(ctx, sess); err == nil {
		t.Fatal("expected a complaint")
	}
	if op.Err == "" {
		t.Fatal("Err should be populated")
	}
}

func TestSessionClose(t *testing.T) {
	ctx := context.Background()
	sess, emitted := newTestSession(t)

	op := NOp{
		Subscribe: &OpSubscribe{Topic: "news", Id: "s1"},
	}
	if err := op.Do(ctx, sess); err != nil {
		t.Fatal(err)
	}

	sess.Close()

	pub := NOp{
		Publish: &OpPublish{Topic: "news", Payload: "anyone?"},
	}
	if err := pub.Do(ctx, sess); err != nil {
		t.Fatal(err)
	}
	if len(*emitted) != 0 {
		t.Fatal(*emitted)
	}
}

func TestListener(t *testing.T) {
	ctx := context.Background()

	input := strings.Join([]string{
		"# a comment",
		"",
		"json",
		`{"request":{"path":"echo","action":"echo","params":{"say":"hi"}}}`,
		`{"subscribe":{"topic":"news","id":"s1"}}`,
		`{"publish":{"topic":"news","payload":"flash"}}`,
		"shutdown",
	}, "\n") + "\n"

	std := &Std{
		Runtime: newTestNode(t),
	}

	out := bytes.Buffer{}
	ctl := make(chan bool, 1)
	if err := std.Listener(ctx, bufio.NewReader(strings.NewReader(input)), &out, ctl); err != nil {
		t.Fatal(err)
	}

	select {
	case <-ctl:
	default:
		t.Fatal("shutdown not signaled")
	}

	got := out.String()
	for _, want := range []string{
		`"okay"`,
		`"value":"hi"`,
		`"id":"s1"`,
		`"payload":"flash"`,
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("output missing %s:\n%s", want, got)
		}
	}
}

func TestListenerBadInput(t *testing.T) {
	ctx := context.Background()

	std := &Std{
		Runtime: newTestNode(t),
	}

	out := bytes.Buffer{}
	ctl := make(chan bool, 1)
	in := bufio.NewReader(strings.NewReader("this is not JSON\n"))
	if err := std.Listener(ctx, in, &out, ctl); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "error") {
		t.Fatal(out.String())
	}
}
