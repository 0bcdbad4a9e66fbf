package node

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bosunlabs/bosun/core"
)

func startedRegistry(t *testing.T, svcs ...*testService) *Registry {
	t.Helper()
	r := NewRegistry()
	for _, svc := range svcs {
		if err := r.Register(svc); err != nil {
			t.Fatal(err)
		}
		if err := r.SetState(svc.name, core.Started); err != nil {
			t.Fatal(err)
		}
	}
	return r
}

func TestDispatch(t *testing.T) {
	ctx := context.Background()
	r := NewRouter(startedRegistry(t, &testService{name: "echo"}))

	resp, err := r.Dispatch(ctx, &core.Request{
		Path:   "echo",
		Action: "echo",
		Params: core.NewParams().Set("say", "hello"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Err != nil {
		t.Fatal(resp.Err)
	}
	if resp.Value != "hello" {
		t.Fatal(resp.Value)
	}
}

func TestDispatchNotFound(t *testing.T) {
	r := NewRouter(NewRegistry())
	_, err := r.Dispatch(context.Background(), &core.Request{Path: "ghost", Action: "any"})
	if _, is := err.(*core.ServiceNotFound); !is {
		t.Fatalf("wrong error type %T", err)
	}
}

func TestDispatchNotReady(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(&testService{name: "sleepy"}); err != nil {
		t.Fatal(err)
	}

	r := NewRouter(reg)
	_, err := r.Dispatch(context.Background(), &core.Request{Path: "sleepy", Action: "echo"})
	if _, is := err.(*core.ServiceNotReady); !is {
		t.Fatalf("wrong error type %T", err)
	}
}

func TestDispatchDomainError(t *testing.T) {
	r := NewRouter(startedRegistry(t, &testService{name: "echo"}))

	// An unknown action is the handler's problem, not the
	// router's: it arrives wrapped in the response.
	resp, err := r.Dispatch(context.Background(), &core.Request{Path: "echo", Action: "nope"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Err == nil {
		t.Fatal("expected a domain error")
	}
	if _, is := resp.Err.(*core.UnknownAction); !is {
		t.Fatalf("wrong error type %T", resp.Err)
	}
}

func TestDispatchHandlerPanic(t *testing.T) {
	r := NewRouter(startedRegistry(t, &testService{name: "echo"}))

	resp, err := r.Dispatch(context.Background(), &core.Request{Path: "echo", Action: "boom"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Err == nil || !strings.Contains(resp.Err.Error(), "panic") {
		t.Fatal(resp.Err)
	}
}

// slowService blocks in its handler until released.
type slowService struct {
	testService
	release chan bool
}

func (s *slowService) HandleAction(ctx context.Context, action string, params *core.Params) (interface{}, error) {
	<-s.release
	return "too late", nil
}

func TestDispatchCancellation(t *testing.T) {
	slow := &slowService{testService: testService{name: "slow"}, release: make(chan bool)}

	reg := NewRegistry()
	if err := reg.Register(slow); err != nil {
		t.Fatal(err)
	}
	if err := reg.SetState("slow", core.Started); err != nil {
		t.Fatal(err)
	}
	r := NewRouter(reg)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := r.Dispatch(ctx, &core.Request{Path: "slow", Action: "wait"})
	if !errors.Is(err, context.Canceled) {
		t.Fatal(err)
	}

	// The handler's late result is discarded, not retried: let it
	// finish and verify nothing explodes.
	close(slow.release)
	time.Sleep(10 * time.Millisecond)
}

func TestDispatchDepthLimit(t *testing.T) {
	r := NewRouter(startedRegistry(t, &testService{name: "echo"}))
	r.MaxDepth = 4

	// A context that arrives already at the limit is refused.  (A
	// real recursive chain is exercised in the Node tests.)
	ctx := context.WithValue(context.Background(), depthKey{}, 4)
	_, err := r.Dispatch(ctx, &core.Request{Path: "echo", Action: "echo"})
	if !errors.Is(err, core.RequestDepthExceeded) {
		t.Fatal(err)
	}
}
