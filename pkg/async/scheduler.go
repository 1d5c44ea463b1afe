// SPDX-License-Identifier: MIT

// Package async moves blocking work off the caller's thread and hands results back
// to it. The host runtime decides which goroutine counts as "the caller's thread";
// the library only sees it through the Scheduler interface.
package async

import "sync"

// Scheduler delivers completions to the thread the caller designated.
type Scheduler interface {
	Schedule(fn func())
}

// Inline runs scheduled functions immediately on the completing goroutine.
type Inline struct{}

// Schedule runs fn.
func (Inline) Schedule(fn func()) { fn() }

// SchedulerFunc adapts a function to Scheduler.
type SchedulerFunc func(fn func())

// Schedule calls f(fn).
func (f SchedulerFunc) Schedule(fn func()) { f(fn) }

// Mailbox queues scheduled functions until the owning loop calls Drain.
// Schedule never blocks.
type Mailbox struct {
	mu      sync.Mutex
	pending []func()
	ready   chan struct{}
}

// NewMailbox returns an empty mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{ready: make(chan struct{}, 1)}
}

// Schedule enqueues fn.
func (m *Mailbox) Schedule(fn func()) {
	m.mu.Lock()
	m.pending = append(m.pending, fn)
	m.mu.Unlock()
	select {
	case m.ready <- struct{}{}:
	default:
	}
}

// Ready is signalled after Schedule; loops may select on it before calling Drain.
func (m *Mailbox) Ready() <-chan struct{} { return m.ready }

// Len reports the number of queued functions.
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Drain runs every queued function on the calling goroutine, in scheduling
// order, and returns how many ran. Functions scheduled while draining run on
// the next call.
func (m *Mailbox) Drain() int {
	m.mu.Lock()
	batch := m.pending
	m.pending = nil
	m.mu.Unlock()
	for _, fn := range batch {
		fn()
	}
	return len(batch)
}
