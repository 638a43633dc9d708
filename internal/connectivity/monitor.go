// Package connectivity tracks network reachability to the remote service.
// The engine only depends on the Monitor interface, so the event source can
// be a periodic probe, an OS reachability API, or the embedding application.
package connectivity

import "sync"

// State is the current reachability of the remote service.
type State int

const (
	Offline State = iota
	Online
)

func (s State) String() string {
	if s == Online {
		return "online"
	}
	return "offline"
}

// Monitor exposes the current connectivity state and edge-triggered change
// notifications: a listener sees each transition exactly once, never a
// duplicate "online" while already online.
type Monitor interface {
	State() State
	Subscribe(fn func(State)) (cancel func())
}

// notifier implements the shared edge-detection and fan-out logic.
type notifier struct {
	mu     sync.Mutex
	state  State
	nextID int
	subs   map[int]func(State)
}

func newNotifier(initial State) *notifier {
	return &notifier{state: initial, subs: map[int]func(State){}}
}

func (n *notifier) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

func (n *notifier) Subscribe(fn func(State)) func() {
	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.subs[id] = fn
	n.mu.Unlock()

	return func() {
		n.mu.Lock()
		delete(n.subs, id)
		n.mu.Unlock()
	}
}

// set records a new state and, on an edge, invokes subscribers synchronously
// so an online transition triggers sync within the same turn.
func (n *notifier) set(state State) {
	n.mu.Lock()
	if state == n.state {
		n.mu.Unlock()
		return
	}
	n.state = state

	listeners := make([]func(State), 0, len(n.subs))
	for _, fn := range n.subs {
		listeners = append(listeners, fn)
	}
	n.mu.Unlock()

	for _, fn := range listeners {
		fn(state)
	}
}

// ManualMonitor is a Monitor driven by the embedding application (or tests)
// via Set.
type ManualMonitor struct {
	*notifier
}

// NewManualMonitor builds a ManualMonitor starting in the given state.
func NewManualMonitor(initial State) *ManualMonitor {
	return &ManualMonitor{notifier: newNotifier(initial)}
}

// Set updates the state, notifying subscribers only on a transition.
func (m *ManualMonitor) Set(state State) {
	m.set(state)
}
