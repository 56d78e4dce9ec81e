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
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-couch/sofa/chttp"
	"github.com/go-couch/sofa/internal"
)

// BulkResult is the outcome for a single entry of a bulk write. Each entry's
// outcome is independent; a failed entry does not affect the others.
type BulkResult struct {
	// Doc is the document the entry was applied to, resolved through the
	// database's document cache.
	Doc *Document
	// Rev is the document's new revision, on success.
	Rev string
	// Err is the entry's error, if it was rejected. A stale or missing
	// revision yields a 409-class error.
	Err error
}

type bulkRow struct {
	ID     string `json:"id"`
	Rev    string `json:"rev"`
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

func (r *bulkRow) err() error {
	switch r.Error {
	case "":
		return nil
	case "conflict":
		return &internal.Error{Status: http.StatusConflict, Err: errors.New(r.Reason)}
	case "forbidden":
		return &internal.Error{Status: http.StatusForbidden, Err: errors.New(r.Reason)}
	default:
		return &internal.Error{Status: http.StatusInternalServerError, Message: r.Error, Err: errors.New(r.Reason)}
	}
}

// BulkSave writes multiple documents in one HTTP call. An entry with an
// "_id" property updates the existing document with that ID, and must carry
// the document's current revision in "_rev" or the entry fails with a
// conflict. An entry without an "_id" always creates a new document with a
// server-assigned ID.
//
// The returned slice has one result per entry, in order. The error return
// concerns the request as a whole; per-entry failures are reported in the
// results and do not abort, or roll back, the other entries.
func (db *Database) BulkSave(ctx context.Context, docs []Properties) ([]BulkResult, error) {
	body := struct {
		Docs []Properties `json:"docs"`
	}{Docs: docs}

	// Mark documents addressed by ID busy for the duration of the request.
	done := make([]func(), 0, len(docs))
	for _, props := range docs {
		if id, _ := props["_id"].(string); id != "" {
			done = append(done, db.beginOp(db.Document(id)))
		}
	}
	defer func() {
		for _, fn := range done {
			fn()
		}
	}()

	resp, err := db.server.client.DoReq(ctx, http.MethodPost, db.path("")+"/_bulk_docs", &chttp.Options{JSON: body})
	if err != nil {
		return nil, err
	}
	defer chttp.CloseBody(resp.Body)
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		if err := chttp.ResponseError(resp); err != nil {
			return nil, err
		}
	}
	var rows []bulkRow
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, &internal.Error{Status: http.StatusBadGateway, Err: err}
	}
	if len(rows) != len(docs) {
		return nil, &internal.Error{Status: http.StatusBadGateway, Message: "sofa: server returned wrong number of results"}
	}

	results := make([]BulkResult, len(rows))
	for i, row := range rows {
		result := BulkResult{Err: row.err()}
		if row.ID != "" {
			result.Doc = db.Document(row.ID)
		}
		if result.Err == nil {
			result.Rev = row.Rev
			db.noteLocalRev(row.Rev)
			if result.Doc != nil {
				props := docs[i]
				saved := make(Properties, len(props)+2)
				for k, v := range props {
					saved[k] = v
				}
				saved["_id"] = row.ID
				saved["_rev"] = row.Rev
				result.Doc.setSaved(row.ID, row.Rev, saved)
			}
		}
		results[i] = result
	}
	return results, nil
}
