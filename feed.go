// feed.go: Change feeds for classpath and file events
//
// A Feed is a multi-subscriber publish mechanism with reliable delivery:
// Publish blocks until every live subscriber has the event buffered, so
// invalidations are never dropped. Subscribers acknowledge what they have
// processed, and Sync lets a reader wait until everything published before
// the call has been handled.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package propindex

import (
	"sync"
	"sync/atomic"
	"time"
)

// ClasspathKind tells what happened to a project's source-root set.
type ClasspathKind int

const (
	// ClasspathChanged means roots were added, removed or reordered.
	ClasspathChanged ClasspathKind = iota
	// ClasspathRemoved means the project no longer exists.
	ClasspathRemoved
)

func (k ClasspathKind) String() string {
	switch k {
	case ClasspathChanged:
		return "changed"
	case ClasspathRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// ClasspathEvent is published whenever a project's source-root set changes.
type ClasspathEvent struct {
	Project ProjectID
	Kind    ClasspathKind
}

// FileKind tells what happened to a watched path.
type FileKind int

const (
	FileCreated FileKind = iota
	FileModified
	FileDeleted
)

func (k FileKind) String() string {
	switch k {
	case FileCreated:
		return "created"
	case FileModified:
		return "modified"
	case FileDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// FileEvent is published whenever a watched file is created, modified or deleted.
type FileEvent struct {
	Path    string    // absolute path
	Kind    FileKind  // change kind
	ModTime time.Time // zero for deletions
	Size    int64
}

// Delivery wraps an event with its feed sequence number.
type Delivery[E any] struct {
	Seq   uint64
	Event E
}

// Feed fans events out to every subscriber.
type Feed[E any] struct {
	mu     sync.Mutex
	seq    atomic.Uint64
	subs   map[*Subscription[E]]struct{}
	closed bool
}

// ClasspathFeed carries source-root structure changes.
type ClasspathFeed = Feed[ClasspathEvent]

// FileFeed carries file content changes.
type FileFeed = Feed[FileEvent]

// NewFeed creates an empty feed.
func NewFeed[E any]() *Feed[E] {
	return &Feed[E]{subs: make(map[*Subscription[E]]struct{})}
}

// NewClasspathFeed creates a feed for classpath events.
func NewClasspathFeed() *ClasspathFeed { return NewFeed[ClasspathEvent]() }

// NewFileFeed creates a feed for file events.
func NewFileFeed() *FileFeed { return NewFeed[FileEvent]() }

// Publish delivers event to every subscriber and returns its sequence
// number. It blocks while a subscriber's buffer is full. Publishing on a
// closed feed is a no-op that returns 0.
func (f *Feed[E]) Publish(event E) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return 0
	}

	seq := f.seq.Add(1)
	d := Delivery[E]{Seq: seq, Event: event}
	for sub := range f.subs {
		select {
		case sub.ch <- d:
		case <-sub.done:
		}
	}
	return seq
}

// Subscribe registers a subscriber with the given channel buffer. Events
// published before the call are not delivered. On a closed feed the
// returned subscription is already closed.
func (f *Feed[E]) Subscribe(buffer int) *Subscription[E] {
	if buffer < 0 {
		buffer = 0
	}
	sub := &Subscription[E]{
		feed: f,
		ch:   make(chan Delivery[E], buffer),
		done: make(chan struct{}),
	}
	sub.cond = sync.NewCond(&sub.mu)

	f.mu.Lock()
	sub.acked = f.seq.Load()
	if f.closed {
		f.mu.Unlock()
		sub.closeOnce.Do(func() {
			close(sub.done)
			close(sub.ch)
			sub.closed = true
		})
		return sub
	}
	f.subs[sub] = struct{}{}
	f.mu.Unlock()

	return sub
}

// Subscribers returns the number of live subscriptions.
func (f *Feed[E]) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Sequence returns the number of events published so far.
func (f *Feed[E]) Sequence() uint64 {
	return f.seq.Load()
}

// Close closes every subscription and rejects further publishing.
func (f *Feed[E]) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	subs := make([]*Subscription[E], 0, len(f.subs))
	for sub := range f.subs {
		subs = append(subs, sub)
	}
	f.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
}

// Subscription is one consumer's view of a Feed.
type Subscription[E any] struct {
	feed      *Feed[E]
	ch        chan Delivery[E]
	done      chan struct{}
	closeOnce sync.Once

	mu     sync.Mutex
	cond   *sync.Cond
	acked  uint64
	closed bool
}

// Events returns the delivery channel. It is closed by Close.
func (s *Subscription[E]) Events() <-chan Delivery[E] {
	return s.ch
}

// Ack marks every delivery up to seq as processed.
func (s *Subscription[E]) Ack(seq uint64) {
	s.mu.Lock()
	if seq > s.acked {
		s.acked = seq
		s.cond.Broadcast()
	}
	s.mu.Unlock()
}

// Acked returns the highest acknowledged sequence number.
func (s *Subscription[E]) Acked() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acked
}

// Sync blocks until every event published before the call has been
// acknowledged, or the subscription is closed.
func (s *Subscription[E]) Sync() {
	target := s.feed.seq.Load()

	s.mu.Lock()
	for s.acked < target && !s.closed {
		s.cond.Wait()
	}
	s.mu.Unlock()
}

// Close detaches the subscription from its feed and closes Events.
// Safe to call more than once.
func (s *Subscription[E]) Close() {
	s.closeOnce.Do(func() {
		close(s.done)

		// Once removed under the feed lock no publisher can be sending on ch.
		s.feed.mu.Lock()
		delete(s.feed.subs, s)
		s.feed.mu.Unlock()
		close(s.ch)

		s.mu.Lock()
		s.closed = true
		s.cond.Broadcast()
		s.mu.Unlock()
	})
}
