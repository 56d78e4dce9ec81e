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

package cmd

import (
	"bytes"
	"strings"
	"testing"
)

func TestOutputFormats(t *testing.T) {
	type tst struct {
		format   string
		expected string
	}
	for _, test := range []tst{
		{format: "json", expected: "{\"doc_count\":42}\n"},
		{format: "yaml", expected: "doc_count: 42\n"},
	} {
		t.Run(test.format, func(t *testing.T) {
			r := rootCmd()
			r.format = test.format
			buf := &bytes.Buffer{}
			r.cmd.SetOut(buf)
			payload := map[string]interface{}{"doc_count": 42}
			if err := r.output(r.cmd, payload); err != nil {
				t.Fatal(err)
			}
			if buf.String() != test.expected {
				t.Errorf("output = %q, want %q", buf.String(), test.expected)
			}
		})
	}
}

func TestDatabaseResolution(t *testing.T) {
	r := rootCmd()
	if _, err := r.database(nil); err == nil {
		t.Error("expected an error with no DSN")
	}
	db, err := r.database([]string{"http://localhost:5984/mydb"})
	if err != nil {
		t.Fatal(err)
	}
	if db.Name() != "mydb" {
		t.Errorf("name = %q, want mydb", db.Name())
	}
	r.dsn = "http://localhost:5984/flagdb"
	db, err = r.database(nil)
	if err != nil {
		t.Fatal(err)
	}
	if db.Name() != "flagdb" {
		t.Errorf("name = %q, want flagdb", db.Name())
	}
}

func TestRetryFlagParsing(t *testing.T) {
	r := rootCmd()
	if err := r.cmd.ParseFlags([]string{"--retry", "3", "--retry-delay", "10ms", "-f", "yaml"}); err != nil {
		t.Fatal(err)
	}
	if r.retryCount != 3 {
		t.Errorf("retry = %d, want 3", r.retryCount)
	}
	if r.retryDelay.String() != "10ms" {
		t.Errorf("retry-delay = %s", r.retryDelay)
	}
	if r.format != "yaml" {
		t.Errorf("format = %q", r.format)
	}
	if !strings.Contains(r.cmd.UsageString(), "replicate") {
		t.Error("expected the replicate subcommand to be registered")
	}
}
