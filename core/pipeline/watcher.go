package pipeline

import (
	"sync"

	"go.dedis.ch/chainblog/ledger"
)

// Event is a state transition of a submission.
type Event struct {
	Submission string
	TxID       string
	State      State

	// Reason is set when the state is Failed.
	Reason ledger.Reason
}

// Observer is the interface to implement to watch the submissions.
type Observer interface {
	NotifyCallback(event Event)
}

// Observable provides primitives to add and remove observers and to notify
// them of new events.
type Observable interface {
	// Add adds the observer to the list of observers that will be notified of
	// new events.
	Add(observer Observer)

	// Remove removes the observer from the list thus stopping it from receiving
	// new events.
	Remove(observer Observer)

	// Notify notifies the observers of a new event.
	Notify(event Event)
}

// Watcher is an implementation of the Observable interface.
//
// - implements pipeline.Observable
type Watcher struct {
	sync.RWMutex

	observers map[Observer]struct{}
}

// NewWatcher creates a new empty watcher.
func NewWatcher() *Watcher {
	return &Watcher{
		observers: make(map[Observer]struct{}),
	}
}

// Add implements pipeline.Observable.
func (w *Watcher) Add(observer Observer) {
	w.Lock()
	w.observers[observer] = struct{}{}
	w.Unlock()
}

// Remove implements pipeline.Observable.
func (w *Watcher) Remove(observer Observer) {
	w.Lock()
	delete(w.observers, observer)
	w.Unlock()
}

// Notify implements pipeline.Observable. It notifies the observers one after
// each other, in the goroutine of the submission.
func (w *Watcher) Notify(event Event) {
	w.RLock()
	defer w.RUnlock()

	for obs := range w.observers {
		obs.NotifyCallback(event)
	}
}

// Recorder is an observer that keeps the events of the submissions.
//
// - implements pipeline.Observer
type Recorder struct {
	sync.Mutex

	events []Event
}

// NotifyCallback implements pipeline.Observer.
func (r *Recorder) NotifyCallback(event Event) {
	r.Lock()
	r.events = append(r.events, event)
	r.Unlock()
}

// States returns the states of the recorded events in order.
func (r *Recorder) States() []State {
	r.Lock()
	defer r.Unlock()

	states := make([]State, len(r.events))
	for i, event := range r.events {
		states[i] = event.State
	}

	return states
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.Lock()
	defer r.Unlock()

	return append([]Event{}, r.events...)
}
