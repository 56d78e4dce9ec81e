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
	"sync"

	"github.com/google/uuid"

	"github.com/go-couch/sofa/chttp"
	"github.com/go-couch/sofa/internal"
)

// Properties is the JSON-compatible body of a document.
type Properties map[string]interface{}

// Document is the local representative of a document in a [Database]. It
// tracks the document's ID, its current known revision, and optionally a
// cached snapshot of its properties. Documents are owned by their database's
// identity cache and are never duplicated; see [Database.Document].
type Document struct {
	db *Database

	mu    sync.Mutex
	id    string
	rev   string
	props Properties
}

// Database returns the document's parent database.
func (d *Document) Database() *Database {
	return d.db
}

// ID returns the document's ID, or "" for an untitled document that has not
// yet been saved.
func (d *Document) ID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.id
}

// Rev returns the document's current known revision, or "" if unknown.
func (d *Document) Rev() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rev
}

// Properties returns the cached property snapshot, or nil if the document
// has not been fetched or saved yet. The returned map must not be modified.
func (d *Document) Properties() Properties {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.props
}

// Fetch retrieves the document's current content from the server, updating
// the cached snapshot and revision.
func (d *Document) Fetch(ctx context.Context) (Properties, error) {
	id := d.ID()
	if id == "" {
		return nil, &internal.Error{Status: http.StatusBadRequest, Message: "sofa: document has no ID"}
	}
	done := d.db.beginOp(d)
	defer done()
	var props Properties
	if err := d.db.server.client.DoJSON(ctx, http.MethodGet, d.db.path(id), nil, &props); err != nil {
		return nil, err
	}
	rev, _ := props["_rev"].(string)
	d.mu.Lock()
	d.rev = rev
	d.props = props
	d.mu.Unlock()
	return props, nil
}

// Save writes props as the document's new content. An untitled document is
// assigned a generated ID and created on the server; an existing document is
// updated using its current known revision, and the server responds with a
// 409-class error if that revision is stale.
func (d *Document) Save(ctx context.Context, props Properties) error {
	d.mu.Lock()
	if d.id == "" {
		d.id = uuid.NewString()
	}
	id, rev := d.id, d.rev
	d.mu.Unlock()

	body := make(Properties, len(props)+2)
	for k, v := range props {
		body[k] = v
	}
	body["_id"] = id
	if rev != "" {
		body["_rev"] = rev
	} else {
		delete(body, "_rev")
	}

	done := d.db.beginOp(d)
	defer done()
	var result struct {
		OK  bool   `json:"ok"`
		ID  string `json:"id"`
		Rev string `json:"rev"`
	}
	err := d.db.server.client.DoJSON(ctx, http.MethodPut, d.db.path(id), &chttp.Options{JSON: body}, &result)
	if err != nil {
		return err
	}
	d.db.noteLocalRev(result.Rev)
	body["_rev"] = result.Rev
	d.mu.Lock()
	d.rev = result.Rev
	d.props = body
	d.mu.Unlock()
	return nil
}

// Delete marks the document as deleted on the server.
func (d *Document) Delete(ctx context.Context) error {
	d.mu.Lock()
	id, rev := d.id, d.rev
	d.mu.Unlock()
	if id == "" {
		return &internal.Error{Status: http.StatusBadRequest, Message: "sofa: document has no ID"}
	}
	done := d.db.beginOp(d)
	defer done()
	var result struct {
		Rev string `json:"rev"`
	}
	opts := &chttp.Options{
		Query: url.Values{"rev": []string{rev}},
	}
	err := d.db.server.client.DoJSON(ctx, http.MethodDelete, d.db.path(id), opts, &result)
	if err != nil {
		return err
	}
	d.db.noteLocalRev(result.Rev)
	d.mu.Lock()
	d.rev = result.Rev
	d.props = nil
	d.mu.Unlock()
	return nil
}

// noteRemoteChange updates the document for a change observed on the feed.
// The cached snapshot is dropped, since it no longer reflects the current
// revision.
func (d *Document) noteRemoteChange(rev string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if rev != "" {
		d.rev = rev
	}
	d.props = nil
}

// setSaved records a successful write performed outside Save, such as a
// bulk write.
func (d *Document) setSaved(id, rev string, props Properties) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.id == "" {
		d.id = id
	}
	d.rev = rev
	if props != nil {
		d.props = props
	}
}
