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
	"github.com/spf13/cobra"
)

func countCmd(r *root) *cobra.Command {
	return &cobra.Command{
		Use:   "count [dsn]",
		Short: "Print the number of documents in a database",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := r.database(args)
			if err != nil {
				return err
			}
			ctx, cancel := r.ctx(cmd)
			defer cancel()
			var count int64
			err = r.retry(ctx, func() error {
				var err error
				count, err = db.DocumentCount(ctx)
				return err
			})
			if err != nil {
				return err
			}
			return r.output(cmd, map[string]int64{"doc_count": count})
		},
	}
}
