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

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fedra-project/fedra/pkg/private/serrors"
	"github.com/fedra-project/fedra/pkg/scrypto/credential"
	"github.com/fedra-project/fedra/pkg/urn"
	"github.com/fedra-project/fedra/private/app"
	"github.com/fedra-project/fedra/private/registry"
)

func newSlice() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slice",
		Short: "Manage slices and their credentials",
	}
	cmd.AddCommand(newSliceCreate(), newSliceRenew(), newSliceList())
	return cmd
}

func newSliceCreate() *cobra.Command {
	var flags struct {
		config   string
		duration time.Duration
	}
	cmd := &cobra.Command{
		Use:     "create <name>",
		Short:   "Create a slice and issue its credential",
		Example: "  fedra slice create experiment-7 --duration 48h",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := app.Setup(flags.config)
			if err != nil {
				return err
			}
			defer env.Close()

			owner, err := urn.Parse(env.Cfg.Identity.URN)
			if err != nil {
				return serrors.Wrap("parsing identity URN", err)
			}
			sliceURN := urn.New(owner.Authority, urn.TypeSlice, args[0])
			now := time.Now()
			cred, err := credential.Issue(credential.Request{
				OwnerCert: env.Identity.Certificate(),
				OwnerURN:  env.Cfg.Identity.URN,
				TargetURN: sliceURN.String(),
				Rights:    credential.AllSliceRights(),
				Validity: credential.Validity{
					NotBefore: now,
					NotAfter:  now.Add(flags.duration),
				},
			}, env.Identity)
			if err != nil {
				return serrors.Wrap("issuing slice credential", err)
			}
			if err := env.Registry.AddSlice(cmd.Context(), registry.Slice{
				URN:        sliceURN.String(),
				Credential: cred.Encode(),
				Expires:    cred.Validity.NotAfter,
			}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s expires %s\n",
				sliceURN, cred.Validity.NotAfter.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&flags.config, "config", "fedra.toml", "Configuration file")
	cmd.Flags().DurationVar(&flags.duration, "duration", 24*time.Hour,
		"Credential lifetime")
	return cmd
}

func newSliceRenew() *cobra.Command {
	var flags struct {
		config   string
		duration time.Duration
	}
	cmd := &cobra.Command{
		Use:   "renew <slice-urn>",
		Short: "Re-issue a slice credential with a new expiry",
		Long: `Re-issue a slice credential with a new expiry.

The previous credential stays valid until its own expiry; renewal never
revokes anything.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := app.Setup(flags.config)
			if err != nil {
				return err
			}
			defer env.Close()

			cred, err := env.SliceCredential(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			now := time.Now()
			renewed, err := credential.Renew(cred, credential.Validity{
				NotBefore: now,
				NotAfter:  now.Add(flags.duration),
			}, env.Identity)
			if err != nil {
				return serrors.Wrap("renewing slice credential", err)
			}
			if err := env.Registry.AddSlice(cmd.Context(), registry.Slice{
				URN:        args[0],
				Credential: renewed.Encode(),
				Expires:    renewed.Validity.NotAfter,
			}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s expires %s\n",
				args[0], renewed.Validity.NotAfter.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&flags.config, "config", "fedra.toml", "Configuration file")
	cmd.Flags().DurationVar(&flags.duration, "duration", 24*time.Hour,
		"New credential lifetime, starting now")
	return cmd
}

func newSliceList() *cobra.Command {
	var flags struct {
		config string
	}
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered slices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := app.Setup(flags.config)
			if err != nil {
				return err
			}
			defer env.Close()

			slices, err := env.Registry.Slices(cmd.Context())
			if err != nil {
				return err
			}
			for _, s := range slices {
				fmt.Fprintf(cmd.OutOrStdout(), "%s expires %s\n",
					s.URN, s.Expires.Format(time.RFC3339))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&flags.config, "config", "fedra.toml", "Configuration file")
	return cmd
}

func newOrphans() *cobra.Command {
	var flags struct {
		config string
	}
	cmd := &cobra.Command{
		Use:   "orphans",
		Short: "List slivers that outlived their slice credential",
		Long: `List slivers that outlived their slice credential.

Orphans hold resources on aggregates although the credential governing them
has expired. They are only reported; releasing them requires an explicit
delete with a renewed credential.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := app.Setup(flags.config)
			if err != nil {
				return err
			}
			defer env.Close()

			orphans, err := env.Registry.Orphans(cmd.Context(), time.Now())
			if err != nil {
				return err
			}
			if len(orphans) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no orphaned slivers")
				return nil
			}
			for _, o := range orphans {
				fmt.Fprintf(cmd.OutOrStdout(), "%s on %s (%s, expires %s)\n",
					o.SliceURN, o.Aggregate, o.State, o.Expires.Format(time.RFC3339))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&flags.config, "config", "fedra.toml", "Configuration file")
	return cmd
}
