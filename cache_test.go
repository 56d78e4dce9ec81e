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
	"testing"
)

func TestDocumentIdentity(t *testing.T) {
	db := newTestDB(t, nil, nil)
	foo := db.Document("foo")
	if foo == nil {
		t.Fatal("expected document")
	}
	if got := db.Document("foo"); got != foo {
		t.Error("expected the same instance for repeated resolution")
	}
	if got := db.Document("bar"); got == foo {
		t.Error("expected a distinct instance for a different ID")
	}
	if a, b := db.UntitledDocument(), db.UntitledDocument(); a == b {
		t.Error("expected distinct untitled documents")
	}
}

func TestDocumentIdentityConcurrent(t *testing.T) {
	db := newTestDB(t, nil, nil)
	const n = 50
	docs := make([]*Document, n)
	var wg sync.WaitGroup
	wg.Add(n)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			<-start
			docs[i] = db.Document("contested")
		}(i)
	}
	close(start)
	wg.Wait()
	for i := 1; i < n; i++ {
		if docs[i] != docs[0] {
			t.Fatalf("resolution %d returned a different instance", i)
		}
	}
}

func TestClearDocumentCache(t *testing.T) {
	db := newTestDB(t, nil, nil)
	before := db.Document("foo")
	db.ClearDocumentCache()
	after := db.Document("foo")
	if after == before {
		t.Error("expected a new instance after clearing the cache")
	}
	if got := db.Document("foo"); got != after {
		t.Error("expected the same instance for repeated post-clear resolution")
	}
}

func TestClearDocumentCacheRetainsBusy(t *testing.T) {
	db := newTestDB(t, nil, nil)
	doc := db.Document("inflight")
	done := db.beginOp(doc)
	db.ClearDocumentCache()
	if got := db.Document("inflight"); got != doc {
		t.Error("busy document evicted by cache clear")
	}
	done()
	if got := db.Document("inflight"); got != doc {
		t.Error("busy document lost after operation completed")
	}
}

func TestBusyRestoreAfterClear(t *testing.T) {
	db := newTestDB(t, nil, nil)
	doc := db.Document("inflight")
	release := db.busy.acquire(doc)
	// Simulate a clear that races the operation's completion.
	db.cache.clear(nil)
	release()
	db.cache.restore(doc)
	if got := db.Document("inflight"); got != doc {
		t.Error("expected completed operation to restore the busy instance")
	}
}

func TestBusyCount(t *testing.T) {
	db := newTestDB(t, nil, nil)
	doc := db.Document("foo")
	if got := db.busy.count(doc); got != 0 {
		t.Fatalf("initial count = %d, want 0", got)
	}
	release1 := db.busy.acquire(doc)
	release2 := db.busy.acquire(doc)
	if got := db.busy.count(doc); got != 2 {
		t.Fatalf("count = %d, want 2", got)
	}
	release1()
	release1() // release is idempotent
	if got := db.busy.count(doc); got != 1 {
		t.Fatalf("count = %d, want 1", got)
	}
	release2()
	release2()
	if got := db.busy.count(doc); got != 0 {
		t.Fatalf("count = %d, want 0", got)
	}
}

func TestBusyReleasedOnFailure(t *testing.T) {
	db := newTestDB(t, &http.Response{
		StatusCode:    http.StatusNotFound,
		ContentLength: -1,
		Header:        http.Header{"Content-Type": []string{"application/json"}},
		Body:          Body(`{"error":"not_found","reason":"missing"}`),
	}, nil)
	doc := db.Document("missing")
	if _, err := doc.Fetch(context.Background()); HTTPStatus(err) != http.StatusNotFound {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := db.busy.count(doc); got != 0 {
		t.Errorf("busy count after failed fetch = %d, want 0", got)
	}
}
