package script

import (
	"context"
	"errors"
	"io/ioutil"
	"path/filepath"
	"testing"
	"time"

	"github.com/bosunlabs/bosun/core"
	"github.com/bosunlabs/bosun/node"
)

func newTestNode(t *testing.T) (*node.Node, *Service) {
	t.Helper()

	n, err := node.NewNode(context.Background(), "test", "")
	if err != nil {
		t.Fatal(err)
	}

	s := NewService("")
	if err := n.AddService(context.Background(), s); err != nil {
		t.Fatal(err)
	}

	return n, s
}

func TestScriptAction(t *testing.T) {
	ctx := context.Background()
	n, s := newTestNode(t)

	if err := s.DefineAction(ctx, "inc", ActionSrc{
		Code: "return _.params.x + 1;",
	}); err != nil {
		t.Fatal(err)
	}

	resp, err := n.Request(ctx, "script", "inc", core.NewParams().Set("x", 41))
	if err != nil {
		t.Fatal(err)
	}
	if resp.Err != nil {
		t.Fatal(resp.Err)
	}
	if resp.Value != int64(42) {
		t.Fatalf("%v (%T)", resp.Value, resp.Value)
	}
}

func TestScriptPublish(t *testing.T) {
	ctx := context.Background()
	n, s := newTestNode(t)

	heard := make([]interface{}, 0, 4)
	n.Subscribe("news", func(ctx context.Context, env core.Envelope) error {
		heard = append(heard, env.Payload)
		return nil
	})

	if err := s.DefineAction(ctx, "announce", ActionSrc{
		Code: `_.publish("news", _.params.what); return "announced";`,
	}); err != nil {
		t.Fatal(err)
	}

	resp, err := n.Request(ctx, "script", "announce", core.NewParams().Set("what", "good stuff"))
	if err != nil {
		t.Fatal(err)
	}
	if resp.Err != nil {
		t.Fatal(resp.Err)
	}
	if len(heard) != 1 || heard[0] != "good stuff" {
		t.Fatal(heard)
	}
}

func TestScriptDefine(t *testing.T) {
	ctx := context.Background()
	n, _ := newTestNode(t)

	resp, err := n.Request(ctx, "script", "define", core.NewParams().
		Set("name", "greet").
		Set("code", `return "hello, " + _.params.who;`))
	if err != nil {
		t.Fatal(err)
	}
	if resp.Err != nil {
		t.Fatal(resp.Err)
	}

	resp, err = n.Request(ctx, "script", "greet", core.NewParams().Set("who", "world"))
	if err != nil {
		t.Fatal(err)
	}
	if resp.Value != "hello, world" {
		t.Fatal(resp.Value)
	}
}

func TestScriptRequires(t *testing.T) {
	ctx := context.Background()
	_, s := newTestNode(t)

	s.LibraryProvider = MakeMapLibraryProvider(map[string]string{
		"arith": "function inc(x) { return x + 1; }",
	})

	if err := s.DefineAction(ctx, "incTwice", ActionSrc{
		Code:     "return inc(inc(_.params.x));",
		Requires: []string{"arith"},
	}); err != nil {
		t.Fatal(err)
	}

	x, err := s.HandleAction(ctx, "incTwice", core.NewParams().Set("x", 1))
	if err != nil {
		t.Fatal(err)
	}
	if x != int64(3) {
		t.Fatalf("%v (%T)", x, x)
	}

	if err := s.DefineAction(ctx, "bad", ActionSrc{
		Code:     "return 1;",
		Requires: []string{"nope"},
	}); err == nil {
		t.Fatal("undefined library should complain")
	}
}

func TestScriptUnknownAction(t *testing.T) {
	ctx := context.Background()
	_, s := newTestNode(t)

	_, err := s.HandleAction(ctx, "nope", nil)
	if _, is := err.(*core.UnknownAction); !is {
		t.Fatalf("wrong error type %T", err)
	}
}

func TestScriptBadCode(t *testing.T) {
	ctx := context.Background()
	_, s := newTestNode(t)

	if err := s.DefineAction(ctx, "oops", ActionSrc{
		Code: "return ) 1;",
	}); err == nil {
		t.Fatal("expected a compile error")
	}
}

func TestScriptInterrupt(t *testing.T) {
	_, s := newTestNode(t)

	if err := s.DefineAction(context.Background(), "spin", ActionSrc{
		Code: "for (;;) {}",
	}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := s.HandleAction(ctx, "spin", nil)
	if !errors.Is(err, Interrupted) {
		t.Fatal(err)
	}
}

func TestManifest(t *testing.T) {
	ctx := context.Background()

	dir := t.TempDir()

	if err := ioutil.WriteFile(filepath.Join(dir, "double.js"),
		[]byte("return inc(_.params.x) + inc(_.params.x) - 2;"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := ioutil.WriteFile(filepath.Join(dir, "arith.js"),
		[]byte("function inc(x) { return x + 1; }"), 0644); err != nil {
		t.Fatal(err)
	}

	manifest := `
name: calc
actions:
  double:
    file: double.js
    requires: [arith.js]
  triple:
    code: "return 3 * _.params.x;"
`
	filename := filepath.Join(dir, "manifest.yaml")
	if err := ioutil.WriteFile(filename, []byte(manifest), 0644); err != nil {
		t.Fatal(err)
	}

	s := NewService("")
	if err := s.LoadManifest(ctx, filename); err != nil {
		t.Fatal(err)
	}
	if s.Name() != "calc" {
		t.Fatal(s.Name())
	}
	if len(s.Actions()) != 2 {
		t.Fatal(s.Actions())
	}

	n, err := node.NewNode(ctx, "test", "")
	if err != nil {
		t.Fatal(err)
	}
	if err := n.AddService(ctx, s); err != nil {
		t.Fatal(err)
	}

	resp, err := n.Request(ctx, "calc", "double", core.NewParams().Set("x", 4))
	if err != nil {
		t.Fatal(err)
	}
	if resp.Err != nil {
		t.Fatal(resp.Err)
	}
	if resp.Value != int64(8) {
		t.Fatalf("%v (%T)", resp.Value, resp.Value)
	}

	resp, err = n.Request(ctx, "calc", "triple", core.NewParams().Set("x", 4))
	if err != nil {
		t.Fatal(err)
	}
	if resp.Value != int64(12) {
		t.Fatalf("%v (%T)", resp.Value, resp.Value)
	}
}
