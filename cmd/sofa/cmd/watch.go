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
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/go-couch/sofa"
)

type watchRow struct {
	Seq     int64  `json:"seq" yaml:"seq"`
	ID      string `json:"id,omitempty" yaml:"id,omitempty"`
	Rev     string `json:"rev,omitempty" yaml:"rev,omitempty"`
	Deleted bool   `json:"deleted,omitempty" yaml:"deleted,omitempty"`
	Gap     bool   `json:"gap,omitempty" yaml:"gap,omitempty"`
}

func watchCmd(r *root) *cobra.Command {
	var since int64
	var heartbeat int
	cmd := &cobra.Command{
		Use:   "watch [dsn]",
		Short: "Follow a database's changes feed, printing each external change",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := r.database(args)
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			if since >= 0 {
				db.SetLastSequence(since)
			}

			errc := make(chan error, 1)
			err = db.TrackChanges(ctx, func(c sofa.Change) {
				if c.Err != nil {
					select {
					case errc <- c.Err:
					default:
					}
					cancel()
					return
				}
				row := watchRow{Seq: c.Seq, Gap: c.Gap, Deleted: c.Deleted, Rev: c.Rev}
				if c.Doc != nil {
					row.ID = c.Doc.ID()
				}
				_ = r.output(cmd, row)
			}, sofa.TrackHeartbeat(heartbeat))
			if err != nil {
				return err
			}
			defer db.StopTracking()
			<-ctx.Done()
			select {
			case err := <-errc:
				return err
			default:
				return nil
			}
		},
	}
	cmd.Flags().Int64Var(&since, "since", -1, "Sequence number to start after; defaults to the current position")
	cmd.Flags().IntVar(&heartbeat, "heartbeat", sofa.DefaultHeartbeat, "Feed heartbeat interval in milliseconds")
	return cmd
}
