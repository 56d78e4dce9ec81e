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
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/go-couch/sofa/chttp"
	"github.com/go-couch/sofa/internal"
)

// Server is a connection handle to a CouchDB-compatible server, and the
// factory object for [Database] instances.
type Server struct {
	client *chttp.Client

	mu  sync.Mutex
	dbs map[string]*Database
}

// NewServer returns a connection to the server at dsn. If httpClient is nil,
// [http.DefaultClient] is used.
func NewServer(httpClient *http.Client, dsn string) (*Server, error) {
	client, err := chttp.New(httpClient, dsn)
	if err != nil {
		return nil, err
	}
	return &Server{
		client: client,
		dbs:    make(map[string]*Database),
	}, nil
}

// DSN returns the unparsed DSN used to connect to the server.
func (s *Server) DSN() string {
	return s.client.DSN()
}

// Database returns a handle to the named database on this server. Repeated
// calls with the same name return the same instance, so all callers share
// one document cache. No server calls are made; the database need not exist
// yet.
func (s *Server) Database(name string) *Database {
	s.mu.Lock()
	defer s.mu.Unlock()
	if db, ok := s.dbs[name]; ok {
		return db
	}
	db := newDatabase(s, name)
	s.dbs[name] = db
	return db
}

// DatabaseAtURL is a convenience to instantiate a [Database] directly from
// its URL, without first instantiating a [Server]. Unlike [Server.Database],
// calling this twice with the same URL yields two distinct Database
// instances, with two distinct parent Servers and two independent document
// caches.
func DatabaseAtURL(httpClient *http.Client, dbURL string) (*Database, error) {
	parsed, err := url.Parse(dbURL)
	if err != nil {
		return nil, &internal.Error{Status: http.StatusBadRequest, Err: err}
	}
	trimmed := strings.TrimSuffix(parsed.Path, "/")
	i := strings.LastIndex(trimmed, "/")
	if i < 0 || trimmed[i+1:] == "" {
		return nil, &internal.Error{Status: http.StatusBadRequest, Message: "sofa: database URL must include a database name"}
	}
	name, err := url.PathUnescape(trimmed[i+1:])
	if err != nil {
		return nil, &internal.Error{Status: http.StatusBadRequest, Err: err}
	}
	parsed.Path = trimmed[:i+1]
	server, err := NewServer(httpClient, parsed.String())
	if err != nil {
		return nil, err
	}
	return server.Database(name), nil
}
