package upipe

import "testing"

// stubPipe exercises BasePipe as an external implementor (outside
// internal/upipe) would: embedding the re-exported BasePipe and
// implementing Input/Control against the re-exported ControlOp/Event
// types (spec §6: "External Interfaces... these are stable").
type stubPipe struct {
	BasePipe
}

func (s *stubPipe) Input(r *Ref, hint UpumpMgr) {}
func (s *stubPipe) Control(op ControlOp, args ...any) (bool, error) {
	return s.TimeControl(func() (bool, error) { return true, nil })
}

func TestPublicAPIPipeContract(t *testing.T) {
	p := &stubPipe{BasePipe: NewBasePipe(NewRootProbe(nil))}
	var _ Pipe = p

	if ok, err := p.Control(OpGetOutput, new(Pipe)); !ok || err != nil {
		t.Fatalf("Control via re-exported opcode: ok=%v err=%v", ok, err)
	}
}

func TestPublicAPIManagerFactories(t *testing.T) {
	dicts := NewDictManager(4, 16)
	blocks := NewBlockMgr(NewHeapAllocator(), 4, 0, 0)
	urefMgr := NewURefManager(dicts, blocks, nil, 4)

	r, err := urefMgr.Alloc("block.", 8)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	urefMgr.Free(r)
}

func TestPublicAPISignatureAndThrow(t *testing.T) {
	sig := Sig('t', 'e', 's', 't')
	if sig == 0 {
		t.Fatalf("Sig returned zero")
	}

	var seen Event = -1
	probe := &ChainProbe{Handler: func(p Pipe, ev Event, args ...any) Outcome {
		seen = ev
		return Handled
	}}
	Throw(probe, nil, EventReady)
	if seen != EventReady {
		t.Fatalf("Throw via public API: seen=%v, want EventReady", seen)
	}
}
