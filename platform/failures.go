// SPDX-License-Identifier: GPL-3.0-or-later

package platform

import (
	"slices"
	"sync"

	"github.com/rbmk-project/censordetect/model"
)

// FailureQueueSize is the capacity of each subscription channel.
const FailureQueueSize = 128

// subscription is a subscription to the failure stream.
type subscription struct {
	ch     chan model.FailureEvent
	filter model.URLFilter
	kinds  []model.EventKind
}

// failureStream dispatches events to subscriptions.
//
// The zero value is ready to use.
type failureStream struct {
	mu   sync.Mutex
	next int64
	subs map[int64]*subscription
}

// subscribe adds a subscription and returns its channel along
// with the idempotent function closing it.
func (s *failureStream) subscribe(kinds []model.EventKind, filter model.URLFilter) (<-chan model.FailureEvent, func()) {
	sub := &subscription{
		ch:     make(chan model.FailureEvent, FailureQueueSize),
		filter: filter,
		kinds:  slices.Clone(kinds),
	}
	s.mu.Lock()
	if s.subs == nil {
		s.subs = make(map[int64]*subscription)
	}
	s.next++
	id := s.next
	s.subs[id] = sub
	s.mu.Unlock()

	return sub.ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, found := s.subs[id]; found {
			delete(s.subs, id)
			close(sub.ch)
		}
	}
}

// publish posts the event to the interested subscriptions and returns
// the number of subscriptions whose queue was full.
func (s *failureStream) publish(ev model.FailureEvent) (dropped int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		if !slices.Contains(sub.kinds, ev.Kind) || !sub.filter.Match(ev.URL) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			dropped++
		}
	}
	return
}
