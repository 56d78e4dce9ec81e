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

package chttp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-couch/sofa/internal"
)

// FeedEvent is a single event received from a changes feed.
type FeedEvent struct {
	// Seq is the sequence number of the change.
	Seq Seq `json:"seq"`
	// ID is the ID of the changed document.
	ID string `json:"id"`
	// Changes is the list of the document's leaf revisions.
	Changes []struct {
		Rev string `json:"rev"`
	} `json:"changes"`
	// Deleted is true if the document was deleted.
	Deleted bool `json:"deleted"`
	// LastSeq is set on the final event sent before the server closes a
	// feed, and carries no document.
	LastSeq bool `json:"-"`
}

// Rev returns the event's winning revision, if any.
func (e *FeedEvent) Rev() string {
	if len(e.Changes) == 0 {
		return ""
	}
	return e.Changes[0].Rev
}

// Feed is an open changes feed. Events are read one at a time with Next,
// which blocks until an event arrives or the feed is closed.
type Feed struct {
	body io.ReadCloser
	dec  *json.Decoder
}

// OpenFeed opens a continuous changes feed for the database at dbPath,
// beginning after the sequence number since. Heartbeats keep the connection
// alive during idle periods; the decoder skips them transparently as
// inter-token whitespace.
func (c *Client) OpenFeed(ctx context.Context, dbPath string, since int64, heartbeatMS int) (*Feed, error) {
	query := url.Values{
		"feed":  []string{"continuous"},
		"since": []string{strconv.FormatInt(since, 10)},
	}
	if heartbeatMS > 0 {
		query.Set("heartbeat", strconv.Itoa(heartbeatMS))
	}
	resp, err := c.DoReq(ctx, http.MethodGet, dbPath+"/_changes", &Options{Query: query})
	if err != nil {
		return nil, err
	}
	if err = ResponseError(resp); err != nil {
		return nil, err
	}
	return &Feed{
		body: resp.Body,
		dec:  json.NewDecoder(resp.Body),
	}, nil
}

// Next returns the next event from the feed. It blocks until an event
// arrives, the feed is closed ([io.EOF]), or the connection fails.
func (f *Feed) Next() (*FeedEvent, error) {
	var raw struct {
		FeedEvent
		LastSeq *Seq `json:"last_seq"`
	}
	if err := f.dec.Decode(&raw); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, &internal.Error{Status: http.StatusBadGateway, Err: err}
	}
	event := raw.FeedEvent
	if raw.LastSeq != nil {
		event.Seq = *raw.LastSeq
		event.LastSeq = true
	}
	return &event, nil
}

// Close closes the feed connection. A blocked Next call will return with an
// error.
func (f *Feed) Close() error {
	return f.body.Close()
}
