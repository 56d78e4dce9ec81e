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

// Package sofa provides a stateful client façade for CouchDB-compatible
// databases. A [Database] maintains a canonical, deduplicated in-process
// representation of remote documents, can follow the database's changes feed
// and surface external changes as notifications, coordinates bulk writes
// with per-entry conflict semantics, and triggers push/pull replications
// against peer databases.
//
// All network-backed operations accept a [context.Context] and are safe for
// concurrent use. The only synchronous round trips are
// [Database.DocumentCount] and the first call to [Database.LastSequence];
// both block the calling goroutine until the HTTP request completes.
package sofa
