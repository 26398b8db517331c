package pipeline

import (
	"sync"

	"github.com/dukex/dailyreel/pkg/models"
)

// hub fans committed events out to the subscribers of each run.
type hub struct {
	mu   sync.Mutex
	subs map[string]map[*Subscription]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[string]map[*Subscription]struct{})}
}

// subscribe registers a subscription that starts with snapshot.
func (h *hub) subscribe(runID string, snapshot models.StepEvent) *Subscription {
	sub := newSubscription(h, runID)
	sub.enqueue(snapshot)

	if snapshot.Terminal() {
		return sub
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.subs[runID] == nil {
		h.subs[runID] = make(map[*Subscription]struct{})
	}

	h.subs[runID][sub] = struct{}{}

	return sub
}

// publish never blocks: each subscriber buffers in its own queue.
func (h *hub) publish(event models.StepEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subs[event.RunID] {
		sub.enqueue(event)
	}

	if event.Terminal() {
		delete(h.subs, event.RunID)
	}
}

func (h *hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if subs, ok := h.subs[sub.runID]; ok {
		delete(subs, sub)

		if len(subs) == 0 {
			delete(h.subs, sub.runID)
		}
	}
}

func (h *hub) count(runID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.subs[runID])
}

// Subscription is a finite stream of a run's events: a snapshot first, then
// transitions until the run reaches a terminal state.
type Subscription struct {
	hub    *hub
	runID  string
	out    chan models.StepEvent
	notify chan struct{}
	done   chan struct{}
	once   sync.Once

	mu    sync.Mutex
	queue []models.StepEvent
}

func newSubscription(h *hub, runID string) *Subscription {
	sub := &Subscription{
		hub:    h,
		runID:  runID,
		out:    make(chan models.StepEvent),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	go sub.pump()

	return sub
}

// Events is closed after the terminal event is delivered or the subscription is closed.
func (s *Subscription) Events() <-chan models.StepEvent {
	return s.out
}

// Close detaches the subscriber. Pending events are dropped.
func (s *Subscription) Close() {
	s.once.Do(func() {
		close(s.done)
		s.hub.remove(s)
	})
}

func (s *Subscription) enqueue(event models.StepEvent) {
	s.mu.Lock()
	s.queue = append(s.queue, event)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Subscription) next() (models.StepEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 {
		return models.StepEvent{}, false
	}

	event := s.queue[0]
	s.queue[0] = models.StepEvent{}
	s.queue = s.queue[1:]

	return event, true
}

func (s *Subscription) pump() {
	defer close(s.out)

	for {
		event, ok := s.next()
		if !ok {
			select {
			case <-s.notify:
				continue
			case <-s.done:
				return
			}
		}

		select {
		case s.out <- event:
		case <-s.done:
			return
		}

		if event.Terminal() {
			s.Close()

			return
		}
	}
}
