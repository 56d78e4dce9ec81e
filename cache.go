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

import "sync"

// docCache is the identity cache for a database's documents. For any given
// document ID there is never more than one live *Document instance, until
// the cache is cleared. The cache performs no network calls; fetching remote
// content is the caller's responsibility via the returned Document.
type docCache struct {
	mu   sync.Mutex
	docs map[string]*Document
}

func newDocCache() *docCache {
	return &docCache{
		docs: make(map[string]*Document),
	}
}

// resolve returns the cached document for id. When absent, a new document is
// constructed by create and inserted, all under the cache lock, so two
// concurrent resolutions of the same ID always yield the same instance.
func (c *docCache) resolve(id string, create func() *Document) *Document {
	c.mu.Lock()
	defer c.mu.Unlock()
	if doc, ok := c.docs[id]; ok {
		return doc
	}
	doc := create()
	c.docs[id] = doc
	return doc
}

// restore re-inserts doc unless another instance has since been cached under
// the same ID. Used when an in-flight operation completes after the cache
// was cleared, so that future lookups resolve to the instance the operation
// mutated.
func (c *docCache) restore(doc *Document) {
	id := doc.ID()
	if id == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.docs[id]; !ok {
		c.docs[id] = doc
	}
}

// clear drops all cached instances, except those in keep. Subsequent
// resolves construct new instances.
func (c *docCache) clear(keep []*Document) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs = make(map[string]*Document)
	for _, doc := range keep {
		if id := doc.ID(); id != "" {
			c.docs[id] = doc
		}
	}
}

// busySet reference-counts documents involved in an in-flight network
// operation. Counts never go negative, and return to zero once every
// operation completes, whether it succeeded or failed.
type busySet struct {
	mu     sync.Mutex
	counts map[*Document]int
}

func newBusySet() *busySet {
	return &busySet{
		counts: make(map[*Document]int),
	}
}

// acquire marks doc as busy and returns the corresponding release function.
// The release function is idempotent, and must be called on every exit path
// of the operation.
func (s *busySet) acquire(doc *Document) func() {
	s.mu.Lock()
	s.counts[doc]++
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if s.counts[doc] <= 1 {
				delete(s.counts, doc)
				return
			}
			s.counts[doc]--
		})
	}
}

// count returns the number of in-flight operations involving doc.
func (s *busySet) count(doc *Document) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[doc]
}

// busy returns all documents with in-flight operations.
func (s *busySet) busy() []*Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	docs := make([]*Document, 0, len(s.counts))
	for doc := range s.counts {
		docs = append(docs, doc)
	}
	return docs
}
