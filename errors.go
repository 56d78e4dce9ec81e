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

	"github.com/go-couch/sofa/internal"
)

// HTTPStatus returns the HTTP status code embedded in the error, or 500
// (internal server error), if there was no specified status code. If err is
// nil, 0 is returned.
func HTTPStatus(err error) int {
	return internal.HTTPStatus(err)
}

// IsConflict returns true if the error is the result of a document update
// conflict or duplicate creation (HTTP 409 or 412).
func IsConflict(err error) bool {
	switch HTTPStatus(err) {
	case http.StatusConflict, http.StatusPreconditionFailed:
		return true
	}
	return false
}

// IsNotFound returns true if the error is the result of an HTTP 404/Not
// Found response.
func IsNotFound(err error) bool {
	return HTTPStatus(err) == http.StatusNotFound
}
