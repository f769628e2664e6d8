package upipe

import (
	"testing"

	"github.com/upipe/upipe-go/internal/uref"
	"github.com/upipe/upipe-go/internal/upump"
)

type stubPipe struct{ BasePipe }

func (s *stubPipe) Input(r *uref.Ref, hint upump.Mgr)               {}
func (s *stubPipe) Control(op ControlOp, args ...any) (bool, error) { return true, nil }

func TestThrowStopsAtHandledLink(t *testing.T) {
	var childSeen, parentSeen bool
	root := &ChainProbe{Handler: func(p Pipe, ev Event, args ...any) Outcome {
		parentSeen = true
		return Handled
	}}
	child := &ChainProbe{Parent: root, Handler: func(p Pipe, ev Event, args ...any) Outcome {
		childSeen = true
		return Handled // consumes here, parent must not see it
	}}

	Throw(child, nil, EventReady)

	if !childSeen {
		t.Fatalf("child probe never ran")
	}
	if parentSeen {
		t.Fatalf("parent probe ran despite child returning Handled")
	}
}

func TestThrowForwardsToParent(t *testing.T) {
	var parentEvent Event = -1
	root := &ChainProbe{Handler: func(p Pipe, ev Event, args ...any) Outcome {
		parentEvent = ev
		return Handled
	}}
	child := &ChainProbe{Parent: root, Handler: func(p Pipe, ev Event, args ...any) Outcome {
		return Forward
	}}

	Throw(child, nil, EventAllocError)

	if parentEvent != EventAllocError {
		t.Fatalf("parent never saw forwarded event, got %v", parentEvent)
	}
}

func TestRootProbeAlwaysHandles(t *testing.T) {
	root := NewRootProbe(nil)
	if out := root.OnEvent(nil, EventDead); out != Handled {
		t.Fatalf("RootProbe returned %v, want Handled", out)
	}
}

func TestBasePipeCoreControlOutput(t *testing.T) {
	b := NewBasePipe(NewRootProbe(nil))
	target := &stubPipe{BasePipe: NewBasePipe(nil)}

	if ok, err, matched := b.HandleCoreControl(OpSetOutput, Pipe(target)); !ok || err != nil || !matched {
		t.Fatalf("SetOutput: ok=%v err=%v matched=%v", ok, err, matched)
	}
	var got Pipe
	if ok, err, matched := b.HandleCoreControl(OpGetOutput, &got); !ok || err != nil || !matched {
		t.Fatalf("GetOutput: ok=%v err=%v matched=%v", ok, err, matched)
	}
	if got != Pipe(target) {
		t.Fatalf("GetOutput returned wrong pipe")
	}
}

func TestBasePipeCoreControlManagers(t *testing.T) {
	b := NewBasePipe(nil)

	mgr := &uref.Manager{}
	if ok, err, matched := b.HandleCoreControl(OpSetURefMgr, mgr); !ok || err != nil || !matched {
		t.Fatalf("SetURefMgr: ok=%v err=%v matched=%v", ok, err, matched)
	}
	var gotURefMgr *uref.Manager
	if ok, err, matched := b.HandleCoreControl(OpGetURefMgr, &gotURefMgr); !ok || err != nil || !matched {
		t.Fatalf("GetURefMgr: ok=%v err=%v matched=%v", ok, err, matched)
	}
	if gotURefMgr != mgr {
		t.Fatalf("GetURefMgr returned wrong manager")
	}

	pump := upump.NewGoMgr()
	if ok, err, matched := b.HandleCoreControl(OpSetUpumpMgr, pump); !ok || err != nil || !matched {
		t.Fatalf("SetUpumpMgr: ok=%v err=%v matched=%v", ok, err, matched)
	}
	var gotPump upump.Mgr
	if ok, err, matched := b.HandleCoreControl(OpGetUpumpMgr, &gotPump); !ok || err != nil || !matched {
		t.Fatalf("GetUpumpMgr: ok=%v err=%v matched=%v", ok, err, matched)
	}
	if gotPump != pump {
		t.Fatalf("GetUpumpMgr returned wrong manager")
	}

	if ok, err, matched := b.HandleCoreControl(OpSetUbufMgr, "a-ubuf-mgr"); !ok || err != nil || !matched {
		t.Fatalf("SetUbufMgr: ok=%v err=%v matched=%v", ok, err, matched)
	}
	if b.UbufMgr() != "a-ubuf-mgr" {
		t.Fatalf("UbufMgr()=%v, want %q", b.UbufMgr(), "a-ubuf-mgr")
	}
	var gotUbufMgr any
	if ok, err, matched := b.HandleCoreControl(OpGetUbufMgr, &gotUbufMgr); !ok || err != nil || !matched {
		t.Fatalf("GetUbufMgr: ok=%v err=%v matched=%v", ok, err, matched)
	}
	if gotUbufMgr != "a-ubuf-mgr" {
		t.Fatalf("GetUbufMgr returned %v, want %q", gotUbufMgr, "a-ubuf-mgr")
	}
}

func TestBasePipeUnknownOpNotMatched(t *testing.T) {
	b := NewBasePipe(nil)
	if _, _, matched := b.HandleCoreControl(PrivateOpBase); matched {
		t.Fatalf("private opcode should not be matched by core control handler")
	}
}

type countingObserver struct {
	controlCalls int
	lastOK       bool
}

func (o *countingObserver) ObserveAlloc(uint64, uint64, bool) {}
func (o *countingObserver) ObserveInput(uint64, uint64, bool) {}
func (o *countingObserver) ObserveControl(latencyNs uint64, success bool) {
	o.controlCalls++
	o.lastOK = success
}
func (o *countingObserver) ObserveQueueDepth(uint32) {}

func TestTimeControlReportsThroughObserver(t *testing.T) {
	b := NewBasePipe(nil)
	obs := &countingObserver{}
	b.SetObserver(obs)

	ok, err := b.TimeControl(func() (bool, error) { return true, nil })
	if !ok || err != nil {
		t.Fatalf("TimeControl: ok=%v err=%v", ok, err)
	}
	if obs.controlCalls != 1 || !obs.lastOK {
		t.Fatalf("observer not recorded as success: calls=%d ok=%v", obs.controlCalls, obs.lastOK)
	}

	ok, err = b.TimeControl(func() (bool, error) { return false, ErrBadArg })
	if ok || err != ErrBadArg {
		t.Fatalf("TimeControl passthrough: ok=%v err=%v", ok, err)
	}
	if obs.controlCalls != 2 || obs.lastOK {
		t.Fatalf("observer not recorded as failure: calls=%d ok=%v", obs.controlCalls, obs.lastOK)
	}
}

func TestReleaseSelfThrowsDeadBeforeFreeing(t *testing.T) {
	var order []string
	probe := &ChainProbe{Handler: func(p Pipe, ev Event, args ...any) Outcome {
		if ev == EventDead {
			order = append(order, "dead")
		}
		return Handled
	}}
	target := &stubPipe{BasePipe: NewBasePipe(probe)}

	target.ReleaseSelf(target, func() { order = append(order, "freed") })

	if len(order) != 2 || order[0] != "dead" || order[1] != "freed" {
		t.Fatalf("order=%v, want [dead freed]", order)
	}
}

func TestReleaseSelfOnlyTearsDownOnLastRef(t *testing.T) {
	probe := &ChainProbe{Handler: func(p Pipe, ev Event, args ...any) Outcome { return Handled }}
	target := &stubPipe{BasePipe: NewBasePipe(probe)}
	target.Use() // refcount now 2

	freed := false
	target.ReleaseSelf(target, func() { freed = true })
	if freed {
		t.Fatalf("freed on non-last release")
	}
	target.ReleaseSelf(target, func() { freed = true })
	if !freed {
		t.Fatalf("not freed on last release")
	}
}
