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

// Package cmd implements the sofa command line tool.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/go-couch/sofa"
)

type root struct {
	cmd *cobra.Command

	confFile   string
	dsn        string
	format     string
	timeout    time.Duration
	retryCount int
	retryDelay time.Duration
}

// Execute adds all child commands to the root command and runs it. This is
// called by main.main() and only needs to happen once.
func Execute(ctx context.Context) {
	r := rootCmd()
	if err := r.cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "sofa:", err)
		os.Exit(1)
	}
}

func rootCmd() *root {
	r := &root{}
	r.cmd = &cobra.Command{
		Use:           "sofa",
		Short:         "sofa is a client for CouchDB-compatible servers",
		Version:       sofa.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return r.initConfig()
		},
	}

	pf := r.cmd.PersistentFlags()
	// Accept underscores in flag names, for parity with the config file keys.
	pf.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})
	pf.StringVar(&r.confFile, "config", "", "Path to the config file (default ~/.sofa.yaml)")
	pf.StringVarP(&r.dsn, "dsn", "d", "", "Database URL")
	pf.StringVarP(&r.format, "format", "f", "json", "Output format, json or yaml")
	pf.DurationVar(&r.timeout, "request-timeout", 0, "Timeout for the entire request")
	pf.IntVar(&r.retryCount, "retry", 0, "Times to retry a failed request")
	pf.DurationVar(&r.retryDelay, "retry-delay", 0, "Delay between retry attempts; disables the default exponential backoff")

	r.cmd.AddCommand(
		countCmd(r),
		watchCmd(r),
		replicateCmd(r),
	)
	return r
}

func (r *root) initConfig() error {
	v := viper.New()
	if r.confFile != "" {
		v.SetConfigFile(r.confFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(home)
		}
		v.SetConfigName(".sofa")
		v.SetConfigType("yaml")
	}
	v.SetEnvPrefix("sofa")
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && r.confFile != "" {
			return err
		}
	}
	if r.dsn == "" {
		r.dsn = v.GetString("dsn")
	}
	return nil
}

// database resolves the target database from the --dsn flag or an explicit
// argument.
func (r *root) database(args []string) (*sofa.Database, error) {
	dsn := r.dsn
	if len(args) > 0 {
		dsn = args[0]
	}
	if dsn == "" {
		return nil, fmt.Errorf("database URL required; use --dsn or pass it as an argument")
	}
	return sofa.DatabaseAtURL(nil, dsn)
}

func (r *root) ctx(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	if r.timeout > 0 {
		return context.WithTimeout(cmd.Context(), r.timeout)
	}
	return context.WithCancel(cmd.Context())
}

// retry runs fn, retrying per the --retry and --retry-delay flags.
func (r *root) retry(ctx context.Context, fn func() error) error {
	var bo backoff.BackOff
	if r.retryDelay > 0 {
		bo = backoff.NewConstantBackOff(r.retryDelay)
	} else {
		bo = backoff.NewExponentialBackOff()
	}
	bo = backoff.WithMaxRetries(bo, uint64(r.retryCount))
	bo = backoff.WithContext(bo, ctx)
	return backoff.Retry(fn, bo)
}

// output writes i to the command's stdout in the selected format.
func (r *root) output(cmd *cobra.Command, i interface{}) error {
	switch r.format {
	case "yaml":
		out, err := yaml.Marshal(i)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	default:
		enc := json.NewEncoder(cmd.OutOrStdout())
		return enc.Encode(i)
	}
}
