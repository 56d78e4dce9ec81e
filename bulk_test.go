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
	"net/http"
	"testing"
)

func TestBulkSavePartialFailure(t *testing.T) {
	var sent struct {
		Docs []map[string]interface{} `json:"docs"`
	}
	db := newCustomDB(t, func(req *http.Request) (*http.Response, error) {
		if req.Method != http.MethodPost || req.URL.Path != "/testdb/_bulk_docs" {
			t.Errorf("unexpected request: %s %s", req.Method, req.URL.Path)
		}
		if err := json.NewDecoder(req.Body).Decode(&sent); err != nil {
			t.Fatal(err)
		}
		return &http.Response{
			StatusCode: http.StatusCreated,
			Header:     http.Header{"Content-Type": []string{"application/json"}},
			Body: Body(`[
				{"ok":true,"id":"one","rev":"2-aaa"},
				{"id":"two","error":"conflict","reason":"Document update conflict."},
				{"ok":true,"id":"three","rev":"5-ccc"}
			]`),
		}, nil
	})

	one := db.Document("one")
	results, err := db.BulkSave(context.Background(), []Properties{
		{"_id": "one", "_rev": "1-aaa", "n": 1},
		{"_id": "two", "_rev": "1-stale", "n": 2},
		{"_id": "three", "_rev": "4-ccc", "n": 3},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(sent.Docs) != 3 {
		t.Fatalf("sent %d docs, want 3", len(sent.Docs))
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if results[0].Err != nil || results[2].Err != nil {
		t.Errorf("unexpected entry errors: %v, %v", results[0].Err, results[2].Err)
	}
	if !IsConflict(results[1].Err) {
		t.Errorf("entry 2 error = %v, want conflict", results[1].Err)
	}
	if results[0].Rev != "2-aaa" || results[2].Rev != "5-ccc" {
		t.Errorf("unexpected revs: %q, %q", results[0].Rev, results[2].Rev)
	}
	// Identity invariant: a bulk write never produces a second instance for
	// a document already cached.
	if results[0].Doc != one {
		t.Error("bulk result not resolved through the document cache")
	}
	if results[0].Doc.Rev() != "2-aaa" {
		t.Errorf("doc rev = %q, want 2-aaa", results[0].Doc.Rev())
	}
	// The failed entry's document is untouched.
	if results[1].Doc.Rev() != "" {
		t.Errorf("conflicted doc rev = %q, want unset", results[1].Doc.Rev())
	}
	// Successful revisions are suppressed from the change feed.
	if !db.consumeLocalRev("2-aaa") || !db.consumeLocalRev("5-ccc") {
		t.Error("expected bulk revisions to be recorded as local")
	}
	for _, doc := range []*Document{results[0].Doc, results[1].Doc, results[2].Doc} {
		if got := db.busy.count(doc); got != 0 {
			t.Errorf("busy count for %s = %d, want 0", doc.ID(), got)
		}
	}
}

func TestBulkSaveCreate(t *testing.T) {
	db := newTestDB(t, &http.Response{
		StatusCode: http.StatusCreated,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       Body(`[{"ok":true,"id":"assigned-by-server","rev":"1-abc"}]`),
	}, nil)
	results, err := db.BulkSave(context.Background(), []Properties{{"fresh": true}})
	if err != nil {
		t.Fatal(err)
	}
	doc := results[0].Doc
	if doc == nil || doc.ID() != "assigned-by-server" {
		t.Fatalf("unexpected result doc: %+v", doc)
	}
	if db.Document("assigned-by-server") != doc {
		t.Error("created document not registered in the cache")
	}
}

func TestBulkSaveRequestError(t *testing.T) {
	db := newTestDB(t, &http.Response{
		StatusCode:    http.StatusBadRequest,
		ContentLength: -1,
		Header:        http.Header{"Content-Type": []string{"application/json"}},
		Body:          Body(`{"error":"bad_request","reason":"invalid UTF-8 JSON"}`),
	}, nil)
	if _, err := db.BulkSave(context.Background(), []Properties{{"_id": "x"}}); HTTPStatus(err) != http.StatusBadRequest {
		t.Errorf("unexpected error: %v", err)
	}
}
