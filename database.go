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
	"net/url"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/go-couch/sofa/chttp"
)

// Database is a handle to a database on a server; it contains [Document]
// objects. Obtain one from [Server.Database] or [DatabaseAtURL].
type Database struct {
	server *Server
	name   string

	cache *docCache
	busy  *busySet

	seqMU    sync.Mutex
	seq      int64
	seqKnown bool
	seqGroup singleflight.Group

	trackMU sync.Mutex
	tracker *tracker

	// localRevs holds revisions written through this database, so the change
	// tracker can tell local writes apart from external ones.
	localMU   sync.Mutex
	localRevs map[string]struct{}

	// reps holds the option set each triggered replication was started
	// with, so a later cancel can reproduce the parameters the server
	// matches the job by.
	repMU sync.Mutex
	reps  map[replicationKey]ReplicationOptions
}

func newDatabase(server *Server, name string) *Database {
	return &Database{
		server:    server,
		name:      name,
		cache:     newDocCache(),
		busy:      newBusySet(),
		localRevs: make(map[string]struct{}),
		reps:      make(map[replicationKey]ReplicationOptions),
	}
}

// Server returns the database's parent server.
func (db *Database) Server() *Server {
	return db.server
}

// Name returns the database name.
func (db *Database) Name() string {
	return db.name
}

// path returns the server-relative path to the database, or to a document
// within it.
func (db *Database) path(docID string) string {
	path := "/" + url.PathEscape(db.name)
	if docID != "" {
		path += "/" + encodeDocID(docID)
	}
	return path
}

// The '/' in a document ID is only permitted for design and local documents,
// where the prefix must survive escaping.
func encodeDocID(docID string) string {
	for _, prefix := range []string{"_design/", "_local/"} {
		if strings.HasPrefix(docID, prefix) {
			return prefix + url.PathEscape(strings.TrimPrefix(docID, prefix))
		}
	}
	return url.PathEscape(docID)
}

// Create creates the database on the server. It fails with an HTTP 412-class
// error if a database with this name already exists.
func (db *Database) Create(ctx context.Context) error {
	_, err := db.server.client.DoError(ctx, http.MethodPut, db.path(""), nil)
	return err
}

type dbInfo struct {
	DBName    string    `json:"db_name"`
	DocCount  int64     `json:"doc_count"`
	UpdateSeq chttp.Seq `json:"update_seq"`
}

func (db *Database) info(ctx context.Context) (*dbInfo, error) {
	info := new(dbInfo)
	err := db.server.client.DoJSON(ctx, http.MethodGet, db.path(""), nil, info)
	return info, err
}

// DocumentCount returns the current total number of documents. This is a
// synchronous call; it blocks until the HTTP round trip completes.
func (db *Database) DocumentCount(ctx context.Context) (int64, error) {
	info, err := db.info(ctx)
	if err != nil {
		return 0, err
	}
	return info.DocCount, nil
}

// AllDocumentIDs returns the IDs of all documents in the database.
func (db *Database) AllDocumentIDs(ctx context.Context) ([]string, error) {
	var body struct {
		Rows []struct {
			ID string `json:"id"`
		} `json:"rows"`
	}
	err := db.server.client.DoJSON(ctx, http.MethodGet, db.path("")+"/_all_docs", nil, &body)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(body.Rows))
	for i, row := range body.Rows {
		ids[i] = row.ID
	}
	return ids, nil
}

// Document instantiates a [Document] object with the given ID. It makes no
// server calls; a document with that ID doesn't even need to exist yet.
// Documents are cached, so there will never be more than one instance in
// this database at a time with the same ID.
func (db *Database) Document(id string) *Document {
	return db.cache.resolve(id, func() *Document {
		return &Document{db: db, id: id}
	})
}

// UntitledDocument creates a [Document] object with no current ID. An ID is
// generated and the document created on the server the first time it is
// saved.
func (db *Database) UntitledDocument() *Document {
	return &Document{db: db}
}

// ClearDocumentCache empties the cache of document objects. API calls will
// now instantiate and return new instances. Documents with in-flight
// operations are retained, so that the instance those operations mutate
// remains the one future lookups resolve to.
func (db *Database) ClearDocumentCache() {
	db.cache.clear(db.busy.busy())
}

// beginOp marks doc busy for the duration of a network operation. The
// returned func must be called on every exit path; it releases the busy
// count and re-registers the document in case the cache was cleared while
// the operation was in flight.
func (db *Database) beginOp(doc *Document) func() {
	release := db.busy.acquire(doc)
	return func() {
		release()
		db.cache.restore(doc)
	}
}

// LastSequence returns the last change sequence number received from the
// database. If it is not known yet, the current value is fetched with a
// synchronous query; concurrent first calls share a single round trip.
// Save the value on shutdown and restore it with [Database.SetLastSequence]
// before enabling change tracking to be notified of every change made in
// the meantime.
func (db *Database) LastSequence(ctx context.Context) (int64, error) {
	db.seqMU.Lock()
	if db.seqKnown {
		seq := db.seq
		db.seqMU.Unlock()
		return seq, nil
	}
	db.seqMU.Unlock()
	seq, err, _ := db.seqGroup.Do("update_seq", func() (interface{}, error) {
		db.seqMU.Lock()
		if db.seqKnown {
			seq := db.seq
			db.seqMU.Unlock()
			return seq, nil
		}
		db.seqMU.Unlock()
		info, err := db.info(ctx)
		if err != nil {
			return int64(0), err
		}
		db.setSequence(int64(info.UpdateSeq))
		return int64(info.UpdateSeq), nil
	})
	if err != nil {
		return 0, err
	}
	return seq.(int64), nil
}

// SetLastSequence overrides the last known sequence number, typically to
// resume change tracking after a restart without replaying already-seen
// history.
func (db *Database) SetLastSequence(seq int64) {
	db.seqMU.Lock()
	db.seq = seq
	db.seqKnown = true
	db.seqMU.Unlock()
}

// setSequence records a sequence number observed from the server. Once
// known, the cursor only moves forward.
func (db *Database) setSequence(seq int64) {
	db.seqMU.Lock()
	if !db.seqKnown || seq > db.seq {
		db.seq = seq
		db.seqKnown = true
	}
	db.seqMU.Unlock()
}

// noteLocalRev records a revision written through this database, so that
// the corresponding change-feed event is not reported as external.
func (db *Database) noteLocalRev(rev string) {
	if rev == "" {
		return
	}
	db.localMU.Lock()
	db.localRevs[rev] = struct{}{}
	db.localMU.Unlock()
}

// consumeLocalRev reports whether rev was written through this database,
// and forgets it.
func (db *Database) consumeLocalRev(rev string) bool {
	db.localMU.Lock()
	defer db.localMU.Unlock()
	if _, ok := db.localRevs[rev]; ok {
		delete(db.localRevs, rev)
		return true
	}
	return false
}
