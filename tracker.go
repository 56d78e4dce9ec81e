// Licensed under the Apache License, Version 2.0 (the "License"); you may not
// use this file except in compliance with the License. You may obtain a copy of
// the License at
//
//  http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
// WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the
// License for the specific language governing permissions and limitations under
// the License.

package sofa

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/go-couch/sofa/internal"
)

// TrackingState is the state of a database's change tracker.
type TrackingState int

// The possible change-tracking states. Disabled is the initial state, and
// is resumable; enabling tracking moves through Connecting to Active, and a
// lost connection moves through Reconnecting back to Active.
const (
	TrackingDisabled TrackingState = iota
	TrackingConnecting
	TrackingActive
	TrackingReconnecting
)

func (s TrackingState) String() string {
	switch s {
	case TrackingDisabled:
		return "disabled"
	case TrackingConnecting:
		return "connecting"
	case TrackingActive:
		return "tracking"
	case TrackingReconnecting:
		return "reconnecting"
	}
	return "unknown"
}

// Change describes one externally observed change. Changes made through the
// database object itself are not reported.
type Change struct {
	// Doc is the affected document, resolved through the document cache.
	// It is nil for Gap and Err notifications.
	Doc *Document
	// Seq is the change's sequence number.
	Seq int64
	// Rev is the document's new winning revision.
	Rev string
	// Deleted is true if the document was deleted.
	Deleted bool
	// Gap is true when delivery continuity was broken: changes may have been
	// missed across a reconnection, or an event arrived out of order and was
	// discarded. Seq identifies where the break occurred.
	Gap bool
	// Err is set when the tracker gave up reconnecting. The tracker is
	// disabled after such a notification, and may be re-enabled.
	Err error
}

// TrackOption configures change tracking.
type TrackOption func(*tracker)

// TrackHeartbeat sets the heartbeat interval, in milliseconds, requested
// from the server to keep an idle feed connection alive.
func TrackHeartbeat(ms int) TrackOption {
	return func(t *tracker) {
		t.heartbeat = ms
	}
}

// TrackReconnectPolicy sets the policy used to schedule reconnection
// attempts after a lost feed connection. The function is called once per
// tracking session, when it is enabled. The default retries forever with
// exponential backoff.
func TrackReconnectPolicy(fn func() backoff.BackOff) TrackOption {
	return func(t *tracker) {
		t.newBackOff = fn
	}
}

// TrackChanges enables change tracking. Only external changes are reported,
// not ones made through this database object; this is useful for handling
// synchronization, multi-client access to the same database, or detecting
// changes made while the application was not running.
//
// If the last sequence number is not yet known it is first resolved with a
// single synchronous query, so that the feed starts at the current position.
// Enabling tracking opens a persistent connection to the server, which
// onChange is delivered from; make the callback fast, and do not enable
// tracking unless the notifications are actually used.
//
// ctx governs the tracking session: canceling it is equivalent to calling
// [Database.StopTracking].
func (db *Database) TrackChanges(ctx context.Context, onChange func(Change), options ...TrackOption) error {
	if onChange == nil {
		return &internal.Error{Status: http.StatusBadRequest, Message: "sofa: onChange callback required"}
	}
	db.trackMU.Lock()
	defer db.trackMU.Unlock()
	if db.tracker != nil {
		return &internal.Error{Status: http.StatusConflict, Message: "sofa: change tracking already enabled"}
	}
	if _, err := db.LastSequence(ctx); err != nil {
		return err
	}
	t := newTracker(ctx, db, onChange)
	for _, opt := range options {
		opt(t)
	}
	db.tracker = t
	go t.run()
	return nil
}

// StopTracking disables change tracking, tearing down the feed connection.
// Notifications still queued are discarded. StopTracking blocks until the
// tracker has shut down; it is a no-op if tracking is not enabled.
func (db *Database) StopTracking() {
	db.trackMU.Lock()
	t := db.tracker
	db.tracker = nil
	db.trackMU.Unlock()
	if t != nil {
		t.stop()
	}
}

// TrackingState returns the current state of the change tracker.
func (db *Database) TrackingState() TrackingState {
	db.trackMU.Lock()
	t := db.tracker
	db.trackMU.Unlock()
	if t == nil {
		return TrackingDisabled
	}
	return t.currentState()
}

func (db *Database) currentSeq() int64 {
	db.seqMU.Lock()
	defer db.seqMU.Unlock()
	return db.seq
}

type tracker struct {
	db         *Database
	onChange   func(Change)
	heartbeat  int
	newBackOff func() backoff.BackOff

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	state    TrackingState
	deferred []Change
}

func newTracker(ctx context.Context, db *Database, onChange func(Change)) *tracker {
	ctx, cancel := context.WithCancel(ctx)
	return &tracker{
		db:        db,
		onChange:  onChange,
		heartbeat: DefaultHeartbeat,
		newBackOff: func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.MaxElapsedTime = 0
			return bo
		},
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		state:  TrackingConnecting,
	}
}

func (t *tracker) stop() {
	t.cancel()
	<-t.done
}

func (t *tracker) currentState() TrackingState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// setState transitions the tracker. Entering the Active state flushes any
// deferred notifications, in arrival order; entering the Disabled state
// discards them.
func (t *tracker) setState(state TrackingState) {
	t.mu.Lock()
	t.state = state
	var flush []Change
	switch state {
	case TrackingActive:
		flush = t.deferred
		t.deferred = nil
	case TrackingDisabled:
		t.deferred = nil
	}
	t.mu.Unlock()
	for _, c := range flush {
		t.onChange(c)
	}
}

// deliver sends c to the consumer, or defers it if the tracker is not in a
// state where immediate delivery is safe. Deferral applies to all pending
// notifications for the window, so arrival order is never violated by
// delivering some immediately and others later.
func (t *tracker) deliver(c Change) {
	t.mu.Lock()
	if t.state != TrackingActive {
		t.deferred = append(t.deferred, c)
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()
	t.onChange(c)
}

func (t *tracker) run() {
	defer close(t.done)
	bo := t.newBackOff()
	reconnected := false
	lastSeq := t.db.currentSeq()
	for {
		feed, err := t.db.server.client.OpenFeed(t.ctx, t.db.path(""), lastSeq, t.heartbeat)
		if err != nil {
			if !t.retry(bo, err) {
				return
			}
			continue
		}
		if reconnected {
			// The feed resumes from the last known sequence number, but
			// continuity across the outage cannot be verified.
			t.deliver(Change{Seq: lastSeq, Gap: true})
		}
		reconnected = true

		// Close the feed when tracking stops, so a blocked read returns.
		watch := make(chan struct{})
		go func() {
			select {
			case <-t.ctx.Done():
				_ = feed.Close()
			case <-watch:
			}
		}()

		for {
			event, err := feed.Next()
			if err != nil {
				_ = feed.Close()
				break
			}
			// The connection is only proven healthy once the server has
			// sent something over it.
			t.setState(TrackingActive)
			bo.Reset()
			if event.LastSeq {
				t.db.setSequence(int64(event.Seq))
				continue
			}
			seq := int64(event.Seq)
			if seq <= lastSeq {
				// Arrived out of order, so it was already superseded, but
				// the break in contiguity must still be surfaced.
				t.deliver(Change{Seq: seq, Gap: true})
				continue
			}
			lastSeq = seq
			t.db.setSequence(seq)
			rev := event.Rev()
			if t.db.consumeLocalRev(rev) {
				continue
			}
			doc := t.db.Document(event.ID)
			doc.noteRemoteChange(rev)
			t.deliver(Change{
				Doc:     doc,
				Seq:     seq,
				Rev:     rev,
				Deleted: event.Deleted,
			})
		}
		close(watch)
		if !t.retry(bo, nil) {
			return
		}
		lastSeq = t.db.currentSeq()
	}
}

// retry transitions to Reconnecting and waits for the next backoff
// interval. It returns false if tracking has been stopped or the policy
// gave up, in which case the tracker is left Disabled.
func (t *tracker) retry(bo backoff.BackOff, cause error) bool {
	if t.ctx.Err() != nil {
		t.setState(TrackingDisabled)
		return false
	}
	t.setState(TrackingReconnecting)
	next := bo.NextBackOff()
	if next == backoff.Stop {
		if cause == nil {
			cause = &internal.Error{Status: http.StatusBadGateway, Message: "sofa: change feed connection lost"}
		}
		t.setState(TrackingActive) // flush anything pending before the error
		t.onChange(Change{Err: cause})
		t.setState(TrackingDisabled)
		return false
	}
	select {
	case <-time.After(next):
		return true
	case <-t.ctx.Done():
		t.setState(TrackingDisabled)
		return false
	}
}
