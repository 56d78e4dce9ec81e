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

	"github.com/go-couch/sofa"
)

func replicateCmd(r *root) *cobra.Command {
	var opts sofa.ReplicationOptions
	cmd := &cobra.Command{
		Use:   "replicate <source> <target-dsn>",
		Short: "Replicate from a source database into the target database",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			source := args[0]
			db, err := r.database(args[1:])
			if err != nil {
				return err
			}
			ctx, cancel := r.ctx(cmd)
			defer cancel()
			rep := db.Pull(ctx, source, opts)
			if err := rep.Wait(ctx); err != nil {
				return err
			}
			return r.output(cmd, rep.Result())
		},
	}
	cmd.Flags().BoolVar(&opts.CreateTarget, "create-target", false, "Create the target database if it doesn't exist")
	cmd.Flags().BoolVar(&opts.Continuous, "continuous", false, "Keep the replication active until canceled")
	cmd.Flags().BoolVar(&opts.Cancel, "cancel", false, "Cancel a running replication instead of starting one")
	return cmd
}
