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

package internal

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"gitlab.com/flimzy/testy"
)

func TestErrorFormatting(t *testing.T) {
	type tst struct {
		err  error
		str  string
		full string
	}
	tests := testy.NewTable()
	tests.Add("message only", tst{
		err:  &Error{Status: http.StatusConflict, Message: "document update conflict"},
		str:  "document update conflict",
		full: "document update conflict: 409 / Conflict",
	})
	tests.Add("wrapped error only", tst{
		err:  &Error{Status: http.StatusBadGateway, Err: errors.New("connection reset")},
		str:  "connection reset",
		full: "502 / Bad Gateway: connection reset",
	})
	tests.Add("message and wrapped error", tst{
		err:  &Error{Status: http.StatusBadRequest, Message: "invalid DSN", Err: errors.New("missing protocol scheme")},
		str:  "invalid DSN: missing protocol scheme",
		full: "invalid DSN: 400 / Bad Request: missing protocol scheme",
	})
	tests.Add("no message, no wrapped error", tst{
		err:  &Error{Status: http.StatusNotFound},
		str:  "Not Found",
		full: "404 / Not Found",
	})
	tests.Run(t, func(t *testing.T, test tst) {
		if got := test.err.Error(); got != test.str {
			t.Errorf("Error() = %q, want %q", got, test.str)
		}
		if got := fmt.Sprintf("%v", test.err); got != test.str {
			t.Errorf("%%v = %q, want %q", got, test.str)
		}
		if got := fmt.Sprintf("%+v", test.err); got != test.full {
			t.Errorf("%%+v = %q, want %q", got, test.full)
		}
	})
}

func TestHTTPStatus(t *testing.T) {
	type tst struct {
		err      error
		expected int
	}
	tests := testy.NewTable()
	tests.Add("nil", tst{
		err:      nil,
		expected: 0,
	})
	tests.Add("plain error", tst{
		err:      errors.New("boom"),
		expected: http.StatusInternalServerError,
	})
	tests.Add("direct", tst{
		err:      &Error{Status: http.StatusNotFound},
		expected: http.StatusNotFound,
	})
	tests.Add("wrapped", tst{
		err:      fmt.Errorf("fetching: %w", &Error{Status: http.StatusConflict}),
		expected: http.StatusConflict,
	})
	tests.Add("zero status", tst{
		err:      &Error{Message: "no status set"},
		expected: http.StatusInternalServerError,
	})
	tests.Run(t, func(t *testing.T, test tst) {
		if got := HTTPStatus(test.err); got != test.expected {
			t.Errorf("status = %d, want %d", got, test.expected)
		}
	})
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{Status: http.StatusBadGateway, Err: cause}
	if !errors.Is(err, cause) {
		t.Error("expected the wrapped error to be discoverable")
	}
}
