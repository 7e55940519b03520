// Copyright 2025 The Fedra Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command fedra is the federation client: it manages slice credentials and
// drives reservations across the configured aggregates.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fedra-project/fedra/pkg/log"
	"github.com/fedra-project/fedra/private/config"
)

func main() {
	defer log.HandlePanic()
	executable := filepath.Base(os.Args[0])
	cmd := &cobra.Command{
		Use:           executable,
		Short:         "Fedra is the client of a federated testbed control plane",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.AddCommand(
		newSample(),
		newSlice(),
		newOrphans(),
		newResources(),
		newReserve(),
		newRenew(),
		newDelete(),
		newStatus(),
		newShutdown(),
		newGetVersion(),
	)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newSample() *cobra.Command {
	return &cobra.Command{
		Use:   "sample-config",
		Short: "Print a sample configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprint(cmd.OutOrStdout(), config.Sample)
			return nil
		},
	}
}
