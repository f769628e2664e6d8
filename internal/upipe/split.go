package upipe

import (
	"sync"

	"github.com/upipe/upipe-go/internal/avdeal"
	"github.com/upipe/upipe-go/internal/upump"
	"github.com/upipe/upipe-go/internal/uref"
)

// SplitState is a split source's lifecycle stage (spec §4.6):
//
//	INIT -> NEED_UREF_MGR -> NEED_UPUMP_MGR -> NEED_URL -> PROBING -> RUNNING
//	                                                         \_ PROBE_FAILED -> INIT
type SplitState int

const (
	StateInit SplitState = iota
	StateNeedURefMgr
	StateNeedUpumpMgr
	StateNeedURL
	StateProbing
	StateRunning
)

func (s SplitState) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateNeedURefMgr:
		return "NEED_UREF_MGR"
	case StateNeedUpumpMgr:
		return "NEED_UPUMP_MGR"
	case StateNeedURL:
		return "NEED_URL"
	case StateProbing:
		return "PROBING"
	case StateRunning:
		return "RUNNING"
	default:
		return "STATE(?)"
	}
}

// SplitMgr drives a demultiplexing source's sub-pipe lifecycle: one
// sub-pipe per elementary stream id, unique per parent (spec §4.6).
// Grounded on internal/queue.Runner's explicit TagState machine
// (processRequests/handleCompletion), generalized from per-tag I/O phases
// to the split source's resource-acquisition phases.
type SplitMgr struct {
	mu    sync.Mutex
	state SplitState

	urefMgr     *uref.Manager
	pumpMgr     upump.Mgr
	url         string
	deal        *avdeal.Deal
	dealWatcher upump.Watcher

	subs map[uint64]Pipe
}

// NewSplitMgr returns a split manager in the INIT state.
func NewSplitMgr(deal *avdeal.Deal) *SplitMgr {
	return &SplitMgr{state: StateInit, deal: deal, subs: make(map[uint64]Pipe)}
}

// State returns the current lifecycle stage.
func (m *SplitMgr) State() SplitState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Start moves INIT -> NEED_UREF_MGR, throwing EventNeedURefMgr through
// probe so an upstream probe knows to supply one via Control(OpSetURefMgr)
// (spec §4.6 state diagram: entering NEED_UREF_MGR is itself the request).
// self/probe may be nil for callers that don't need the throw (e.g. tests
// exercising the state machine in isolation).
func (m *SplitMgr) Start(self Pipe, probe Probe) error {
	m.mu.Lock()
	if m.state != StateInit {
		m.mu.Unlock()
		return ErrWrongState
	}
	m.state = StateNeedURefMgr
	m.mu.Unlock()
	Throw(probe, self, EventNeedURefMgr)
	return nil
}

// ProvideURefMgr moves NEED_UREF_MGR -> NEED_UPUMP_MGR, throwing
// EventNeedUpumpMgr on entry for the same reason Start throws
// EventNeedURefMgr.
func (m *SplitMgr) ProvideURefMgr(self Pipe, probe Probe, mgr *uref.Manager) error {
	m.mu.Lock()
	if m.state != StateNeedURefMgr {
		m.mu.Unlock()
		return ErrWrongState
	}
	m.urefMgr = mgr
	m.state = StateNeedUpumpMgr
	m.mu.Unlock()
	Throw(probe, self, EventNeedUpumpMgr)
	return nil
}

// ProvideUpumpMgr moves NEED_UPUMP_MGR -> NEED_URL.
func (m *SplitMgr) ProvideUpumpMgr(pump upump.Mgr) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateNeedUpumpMgr {
		return ErrWrongState
	}
	m.pumpMgr = pump
	m.state = StateNeedURL
	return nil
}

// ProvideURL records url and moves NEED_URL -> PROBING. It does not touch
// the av_deal token; BeginProbe installs the idler that grabs it.
func (m *SplitMgr) ProvideURL(url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateNeedURL {
		return ErrWrongState
	}
	m.url = url
	m.state = StateProbing
	return nil
}

// BeginProbe attempts to grab the process-wide av_deal token, installing
// an idler on pump that retries until it succeeds. grabbed is called once
// the token is held, on the pump's dispatch goroutine.
func (m *SplitMgr) BeginProbe(pump upump.Mgr, grabbed func()) error {
	m.mu.Lock()
	if m.state != StateProbing {
		m.mu.Unlock()
		return ErrWrongState
	}
	m.mu.Unlock()

	w, err := pump.AllocIdler(func() {
		if !m.deal.Grab() {
			return
		}
		m.mu.Lock()
		watcher := m.dealWatcher
		m.mu.Unlock()
		if watcher != nil {
			watcher.Stop()
		}
		grabbed()
	})
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.dealWatcher = w
	m.mu.Unlock()
	return w.Start()
}

// FinishProbe completes a successful probe: registers one sub-pipe per
// stream id (spec testable scenario 5: "exactly two SPLIT_ADD_FLOW events
// fire before the first input"), throws SplitAddFlow for each, releases
// the av_deal token, and moves PROBING -> RUNNING.
func (m *SplitMgr) FinishProbe(self Pipe, probe Probe, streams map[uint64]Pipe) error {
	m.mu.Lock()
	if m.state != StateProbing {
		m.mu.Unlock()
		return ErrWrongState
	}
	for id, p := range streams {
		if _, exists := m.subs[id]; exists {
			m.mu.Unlock()
			return ErrWrongState
		}
		m.subs[id] = p
	}
	m.state = StateRunning
	m.mu.Unlock()

	m.deal.Yield(m.dealWatcher)

	for id := range streams {
		Throw(probe, self, EventSplitAddFlow, id)
	}
	return nil
}

// FailProbe aborts a probe in progress and returns to INIT, dropping every
// sub-pipe (the PROBING -> PROBE_FAILED -> INIT branch of the diagram
// above). It accepts any state, so a running split source that lost its
// upstream resource is reset the same way.
func (m *SplitMgr) FailProbe() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deal != nil {
		m.deal.Abort(m.dealWatcher)
	}
	m.dealWatcher = nil
	m.state = StateInit
	for id := range m.subs {
		delete(m.subs, id)
	}
}

// SubPipe returns the sub-pipe registered for id, if any.
func (m *SplitMgr) SubPipe(id uint64) (Pipe, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.subs[id]
	return p, ok
}

// AddSubPipe registers a new sub-pipe while RUNNING, rejecting a
// colliding stream id with WrongState (spec §4.6: "ids are unique per
// parent and rejected on collision").
func (m *SplitMgr) AddSubPipe(id uint64, p Pipe) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateRunning {
		return ErrWrongState
	}
	if _, exists := m.subs[id]; exists {
		return ErrWrongState
	}
	m.subs[id] = p
	return nil
}
