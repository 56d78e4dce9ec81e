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

	"github.com/go-couch/sofa/chttp"
)

// ReplicationOptions are independent flags affecting a triggered
// replication.
type ReplicationOptions struct {
	// CreateTarget creates the destination database if it doesn't exist.
	CreateTarget bool
	// Continuous keeps the replication active until it is explicitly
	// canceled, rather than completing once caught up.
	Continuous bool
	// Cancel stops an already-running replication matching this source,
	// target, and direction, instead of starting one. Canceling a one-shot
	// replication that has already finished is a no-op, not an error.
	Cancel bool
}

// ReplicationResult describes what occurred during a completed replication.
type ReplicationResult struct {
	OK        bool   `json:"ok"`
	SessionID string `json:"session_id"`
	// LocalID identifies a continuous replication, so it can be canceled.
	LocalID string `json:"_local_id"`
	// NoChanges is true if the databases were already in sync.
	NoChanges bool `json:"no_changes"`
	// History is the server-reported session history.
	History []ReplicationHistory `json:"history"`

	DocsRead         int `json:"-"`
	DocsWritten      int `json:"-"`
	DocWriteFailures int `json:"-"`
}

// ReplicationHistory is one session entry of a replication result.
type ReplicationHistory struct {
	DocsRead         int `json:"docs_read"`
	DocsWritten      int `json:"docs_written"`
	DocWriteFailures int `json:"doc_write_failures"`
}

// Replication is a handle to one asynchronous push or pull replication
// attempt, with the option set captured at trigger time.
type Replication struct {
	// Source and Target are the replication endpoints, as sent to the
	// server.
	Source string
	Target string
	// Options are the options the replication was triggered with.
	Options ReplicationOptions

	done chan struct{}

	mu     sync.Mutex
	result *ReplicationResult
	err    error
}

// Done returns a channel that is closed once the replication request has
// completed. For a continuous replication the server replies as soon as the
// job is triggered; for a one-shot replication it replies when the job
// finishes.
func (r *Replication) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the replication request completes, or ctx is canceled,
// and returns the replication's error, if any.
func (r *Replication) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return r.Err()
	}
}

// Err returns the error that caused the replication to fail, if any. It is
// only valid after the Done channel is closed.
func (r *Replication) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Result returns the server's description of what occurred, or nil if the
// replication has not completed, or failed. It is only valid after the Done
// channel is closed.
func (r *Replication) Result() *ReplicationResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result
}

// Pull triggers replication from the database at sourceURL to this
// database. The returned handle completes when the replication finishes, or
// for continuous replications, as soon as the job is triggered.
func (db *Database) Pull(ctx context.Context, sourceURL string, options ReplicationOptions) *Replication {
	return db.replicate(ctx, sourceURL, db.name, options)
}

// Push triggers replication from this database to the database at
// targetURL.
func (db *Database) Push(ctx context.Context, targetURL string, options ReplicationOptions) *Replication {
	return db.replicate(ctx, db.name, targetURL, options)
}

// replicationKey identifies a triggered replication by its endpoints. The
// direction is implicit: push and pull between the same two databases swap
// source and target, and so never collide.
type replicationKey struct {
	source string
	target string
}

func (db *Database) rememberReplication(key replicationKey, options ReplicationOptions) {
	db.repMU.Lock()
	db.reps[key] = options
	db.repMU.Unlock()
}

func (db *Database) recallReplication(key replicationKey) (ReplicationOptions, bool) {
	db.repMU.Lock()
	defer db.repMU.Unlock()
	options, ok := db.reps[key]
	return options, ok
}

func (db *Database) forgetReplication(key replicationKey) {
	db.repMU.Lock()
	delete(db.reps, key)
	db.repMU.Unlock()
}

// replicate shapes the replication request and posts it to the server's
// _replicate endpoint. The replication protocol itself runs server-side;
// this layer owns the encoding of the option flags and the interpretation
// of the continuous/cancel combinations.
//
// The server matches a transient cancel request against the parameters the
// job was originally triggered with, so each triggered job's option set is
// remembered per source/target pair and folded back into the cancel body. A
// cancel with no matching record is sent bare; if nothing matches
// server-side either, the resulting 404 is treated as a no-op.
func (db *Database) replicate(ctx context.Context, source, target string, options ReplicationOptions) *Replication {
	key := replicationKey{source: source, target: target}
	if options.Cancel {
		if orig, ok := db.recallReplication(key); ok {
			options.CreateTarget = orig.CreateTarget
			options.Continuous = orig.Continuous
		}
	} else {
		db.rememberReplication(key, options)
	}
	rep := &Replication{
		Source:  source,
		Target:  target,
		Options: options,
		done:    make(chan struct{}),
	}
	body := map[string]interface{}{
		"source": source,
		"target": target,
	}
	if options.CreateTarget {
		body["create_target"] = true
	}
	if options.Continuous {
		body["continuous"] = true
	}
	if options.Cancel {
		body["cancel"] = true
	}
	go func() {
		defer close(rep.done)
		result := new(ReplicationResult)
		err := db.server.client.DoJSON(ctx, http.MethodPost, "/_replicate", &chttp.Options{JSON: body}, result)
		if err != nil && options.Cancel && HTTPStatus(err) == http.StatusNotFound {
			// No matching replication is running; for a cancel request
			// that's a no-op, not an error. A one-shot job may simply have
			// finished already.
			result = &ReplicationResult{OK: true}
			err = nil
		}
		if err == nil {
			result.tally()
		}
		switch {
		case err == nil && (options.Cancel || !options.Continuous):
			// Canceled, or a one-shot job that has run to completion.
			db.forgetReplication(key)
		case err != nil && !options.Cancel:
			// The job never started.
			db.forgetReplication(key)
		}
		rep.mu.Lock()
		if err != nil {
			rep.err = err
		} else {
			rep.result = result
		}
		rep.mu.Unlock()
	}()
	return rep
}

// tally folds the server's session history into the result's counters.
func (r *ReplicationResult) tally() {
	for _, h := range r.History {
		r.DocsRead += h.DocsRead
		r.DocsWritten += h.DocsWritten
		r.DocWriteFailures += h.DocWriteFailures
	}
}
