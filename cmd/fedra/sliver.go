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
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fedra-project/fedra/pkg/aggregate"
	"github.com/fedra-project/fedra/pkg/private/serrors"
	"github.com/fedra-project/fedra/pkg/scrypto/credential"
	"github.com/fedra-project/fedra/private/app"
	"github.com/fedra-project/fedra/private/broker"
	"github.com/fedra-project/fedra/private/registry"
)

// dispatchFlags are shared by all fan-out commands.
type dispatchFlags struct {
	config     string
	aggregates []string
	policy     string
}

func (f *dispatchFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.config, "config", "fedra.toml", "Configuration file")
	cmd.Flags().StringSliceVar(&f.aggregates, "aggregates", nil,
		"Aggregates to target (default all configured)")
	cmd.Flags().StringVar(&f.policy, "policy", string(broker.BestEffort),
		"Dispatch policy: best-effort or all-or-nothing")
}

func (f *dispatchFlags) dispatchPolicy() (broker.Policy, error) {
	switch p := broker.Policy(f.policy); p {
	case broker.BestEffort, broker.AllOrNothing:
		return p, nil
	default:
		return "", serrors.New("unknown policy", "policy", f.policy)
	}
}

func dispatch(
	ctx context.Context,
	env *app.Env,
	policy broker.Policy,
	clients []*aggregate.Client,
	call func(*aggregate.Client) broker.Call,
) (broker.BatchResult, error) {

	reqs := make([]broker.Request, 0, len(clients))
	for _, client := range clients {
		reqs = append(reqs, broker.Request{
			Aggregate: client.Name(),
			Call:      call(client),
		})
	}
	return env.Broker.Dispatch(ctx, policy, reqs)
}

func printOutcomes(w io.Writer, res broker.BatchResult, render func(o broker.Outcome) string) {
	for _, o := range res.Outcomes {
		if o.Err != nil {
			fmt.Fprintf(w, "%s: FAILED after %d attempt(s): %v\n",
				o.Aggregate, o.Attempts, o.Err)
			continue
		}
		fmt.Fprintf(w, "%s: %s\n", o.Aggregate, render(o))
	}
}

func newResources() *cobra.Command {
	var flags struct {
		dispatchFlags
		slice      string
		available  bool
		compressed bool
	}
	cmd := &cobra.Command{
		Use:   "resources",
		Short: "List resources advertised by aggregates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := app.Setup(flags.config)
			if err != nil {
				return err
			}
			defer env.Close()
			policy, err := flags.dispatchPolicy()
			if err != nil {
				return err
			}
			clients, err := env.Select(flags.aggregates)
			if err != nil {
				return err
			}
			var cred *credential.Credential
			if flags.slice != "" {
				if cred, err = env.SliceCredential(cmd.Context(), flags.slice); err != nil {
					return err
				}
			} else if cred, err = selfCredential(env); err != nil {
				return err
			}
			opts := aggregate.ListResourcesOptions{
				SliceURN:   flags.slice,
				Available:  flags.available,
				Compressed: flags.compressed,
			}
			res, err := dispatch(cmd.Context(), env, policy, clients,
				func(client *aggregate.Client) broker.Call {
					return func(ctx context.Context) (interface{}, error) {
						return client.ListResources(ctx, cred, opts)
					}
				})
			printOutcomes(cmd.OutOrStdout(), res, func(o broker.Outcome) string {
				return string(o.Value.([]byte))
			})
			return err
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&flags.slice, "slice", "",
		"List the slice's allocated resources instead of the advertisement")
	cmd.Flags().BoolVar(&flags.available, "available", false,
		"Only list currently available resources")
	cmd.Flags().BoolVar(&flags.compressed, "compressed", false,
		"Request a compressed listing (inflated locally)")
	return cmd
}

func newReserve() *cobra.Command {
	var flags struct {
		dispatchFlags
		rspecFile string
	}
	cmd := &cobra.Command{
		Use:     "reserve <slice-urn>",
		Short:   "Reserve resources for a slice on aggregates",
		Example: "  fedra reserve urn:publicid:IDN+example.net+slice+exp7 --rspec req.xml",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := app.Setup(flags.config)
			if err != nil {
				return err
			}
			defer env.Close()
			policy, err := flags.dispatchPolicy()
			if err != nil {
				return err
			}
			clients, err := env.Select(flags.aggregates)
			if err != nil {
				return err
			}
			cred, err := env.SliceCredential(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			rspec, err := os.ReadFile(flags.rspecFile)
			if err != nil {
				return serrors.Wrap("reading rspec", err, "path", flags.rspecFile)
			}
			for _, client := range clients {
				err := env.Registry.RecordSliver(cmd.Context(), registry.Sliver{
					SliceURN:  args[0],
					Aggregate: client.Name(),
				})
				if err != nil {
					return serrors.Wrap("recording reservation", err,
						"aggregate", client.Name())
				}
			}
			res, derr := dispatch(cmd.Context(), env, policy, clients,
				func(client *aggregate.Client) broker.Call {
					return func(ctx context.Context) (interface{}, error) {
						return client.CreateSliver(ctx, args[0], cred, rspec, nil)
					}
				})
			for _, o := range res.Outcomes {
				if o.Err != nil {
					// Release the bookkeeping slot so a later attempt can
					// reserve on this aggregate again.
					if err := env.Registry.DeleteSliver(cmd.Context(), args[0], o.Aggregate); err != nil {
						return err
					}
					continue
				}
				err := env.Registry.MarkAllocated(cmd.Context(), args[0], o.Aggregate,
					cred.Validity.NotAfter, o.Value.([]byte))
				if err != nil {
					return err
				}
			}
			printOutcomes(cmd.OutOrStdout(), res, func(o broker.Outcome) string {
				return fmt.Sprintf("allocated, expires %s",
					cred.Validity.NotAfter.Format(time.RFC3339))
			})
			return derr
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&flags.rspecFile, "rspec", "",
		"Request rspec file (required)")
	cobra.CheckErr(cmd.MarkFlagRequired("rspec"))
	return cmd
}

func newRenew() *cobra.Command {
	var flags struct {
		dispatchFlags
		duration time.Duration
	}
	cmd := &cobra.Command{
		Use:   "renew <slice-urn>",
		Short: "Renew the slice's slivers on their aggregates",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := app.Setup(flags.config)
			if err != nil {
				return err
			}
			defer env.Close()
			policy, err := flags.dispatchPolicy()
			if err != nil {
				return err
			}
			cred, err := env.SliceCredential(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			clients, err := sliceTargets(cmd.Context(), env, args[0], flags.aggregates)
			if err != nil {
				return err
			}
			expiry := time.Now().Add(flags.duration)
			res, derr := dispatch(cmd.Context(), env, policy, clients,
				func(client *aggregate.Client) broker.Call {
					return func(ctx context.Context) (interface{}, error) {
						return client.RenewSliver(ctx, args[0], cred, expiry)
					}
				})
			for _, o := range res.Outcomes {
				if o.Err != nil {
					continue
				}
				err := env.Registry.RenewSliver(cmd.Context(), args[0],
					o.Aggregate, o.Value.(time.Time))
				if err != nil {
					return err
				}
			}
			printOutcomes(cmd.OutOrStdout(), res, func(o broker.Outcome) string {
				return "renewed until " + o.Value.(time.Time).Format(time.RFC3339)
			})
			return derr
		},
	}
	flags.register(cmd)
	cmd.Flags().DurationVar(&flags.duration, "duration", 24*time.Hour,
		"New sliver lifetime, starting now (clamped to the credential expiry)")
	return cmd
}

func newDelete() *cobra.Command {
	var flags dispatchFlags
	cmd := &cobra.Command{
		Use:   "delete <slice-urn>",
		Short: "Release the slice's slivers on their aggregates",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := app.Setup(flags.config)
			if err != nil {
				return err
			}
			defer env.Close()
			policy, err := flags.dispatchPolicy()
			if err != nil {
				return err
			}
			cred, err := env.SliceCredential(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			clients, err := sliceTargets(cmd.Context(), env, args[0], flags.aggregates)
			if err != nil {
				return err
			}
			res, derr := dispatch(cmd.Context(), env, policy, clients,
				func(client *aggregate.Client) broker.Call {
					return func(ctx context.Context) (interface{}, error) {
						return nil, client.DeleteSliver(ctx, args[0], cred)
					}
				})
			for _, o := range res.Outcomes {
				if o.Err != nil {
					continue
				}
				err := env.Registry.DeleteSliver(cmd.Context(), args[0], o.Aggregate)
				if err != nil && !errors.Is(err, registry.ErrAlreadyDeleted) {
					return err
				}
			}
			printOutcomes(cmd.OutOrStdout(), res, func(o broker.Outcome) string {
				return "deleted"
			})
			return derr
		},
	}
	flags.register(cmd)
	return cmd
}

func newStatus() *cobra.Command {
	var flags dispatchFlags
	cmd := &cobra.Command{
		Use:   "status <slice-urn>",
		Short: "Query sliver status on the slice's aggregates",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := app.Setup(flags.config)
			if err != nil {
				return err
			}
			defer env.Close()
			policy, err := flags.dispatchPolicy()
			if err != nil {
				return err
			}
			cred, err := env.SliceCredential(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			clients, err := sliceTargets(cmd.Context(), env, args[0], flags.aggregates)
			if err != nil {
				return err
			}
			res, derr := dispatch(cmd.Context(), env, policy, clients,
				func(client *aggregate.Client) broker.Call {
					return func(ctx context.Context) (interface{}, error) {
						return client.SliverStatus(ctx, args[0], cred)
					}
				})
			printOutcomes(cmd.OutOrStdout(), res, func(o broker.Outcome) string {
				status := o.Value.(map[string]interface{})
				if s, ok := status["geni_status"].(string); ok {
					return s
				}
				return fmt.Sprintf("%v", status)
			})
			return derr
		},
	}
	flags.register(cmd)
	return cmd
}

func newShutdown() *cobra.Command {
	var flags dispatchFlags
	cmd := &cobra.Command{
		Use:   "shutdown <slice-urn>",
		Short: "Emergency-stop the slice's resources",
		Long: `Emergency-stop the slice's resources.

Shutdown is not a delete: resources stay allocated but inactive, pending
operator intervention on the aggregate side.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := app.Setup(flags.config)
			if err != nil {
				return err
			}
			defer env.Close()
			policy, err := flags.dispatchPolicy()
			if err != nil {
				return err
			}
			cred, err := env.SliceCredential(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			clients, err := sliceTargets(cmd.Context(), env, args[0], flags.aggregates)
			if err != nil {
				return err
			}
			res, derr := dispatch(cmd.Context(), env, policy, clients,
				func(client *aggregate.Client) broker.Call {
					return func(ctx context.Context) (interface{}, error) {
						return nil, client.Shutdown(ctx, args[0], cred)
					}
				})
			printOutcomes(cmd.OutOrStdout(), res, func(o broker.Outcome) string {
				return "shut down"
			})
			return derr
		},
	}
	flags.register(cmd)
	return cmd
}

func newGetVersion() *cobra.Command {
	var flags dispatchFlags
	cmd := &cobra.Command{
		Use:   "getversion",
		Short: "Query API version and capabilities of aggregates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := app.Setup(flags.config)
			if err != nil {
				return err
			}
			defer env.Close()
			policy, err := flags.dispatchPolicy()
			if err != nil {
				return err
			}
			clients, err := env.Select(flags.aggregates)
			if err != nil {
				return err
			}
			res, derr := dispatch(cmd.Context(), env, policy, clients,
				func(client *aggregate.Client) broker.Call {
					return func(ctx context.Context) (interface{}, error) {
						return client.GetVersion(ctx)
					}
				})
			printOutcomes(cmd.OutOrStdout(), res, func(o broker.Outcome) string {
				return fmt.Sprintf("%v", o.Value)
			})
			return derr
		},
	}
	flags.register(cmd)
	return cmd
}

// sliceTargets resolves the aggregates holding live slivers of the slice,
// optionally narrowed to an explicit list.
func sliceTargets(
	ctx context.Context,
	env *app.Env,
	sliceURN string,
	narrow []string,
) ([]*aggregate.Client, error) {

	targets, err := env.Registry.Targets(ctx, sliceURN)
	if err != nil {
		return nil, err
	}
	if len(narrow) > 0 {
		allowed := make(map[string]struct{}, len(narrow))
		for _, name := range narrow {
			allowed[name] = struct{}{}
		}
		var filtered []string
		for _, name := range targets {
			if _, ok := allowed[name]; ok {
				filtered = append(filtered, name)
			}
		}
		targets = filtered
	}
	if len(targets) == 0 {
		return nil, serrors.New("no live slivers for slice", "slice", sliceURN)
	}
	return env.Select(targets)
}

// selfCredential issues a short-lived info credential on the member's own
// URN, enough to authenticate advertisement listings.
func selfCredential(env *app.Env) (*credential.Credential, error) {
	now := time.Now()
	return credential.Issue(credential.Request{
		OwnerCert: env.Identity.Certificate(),
		OwnerURN:  env.Cfg.Identity.URN,
		TargetURN: env.Cfg.Identity.URN,
		Rights:    credential.NewRights(credential.PrivInfo),
		Validity: credential.Validity{
			NotBefore: now,
			NotAfter:  now.Add(time.Hour),
		},
	}, env.Identity)
}
