package main

import (
	"context"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/kiranshivaraju/cardiotriage/internal/registry"
	"github.com/kiranshivaraju/cardiotriage/pkg/models"
	"github.com/spf13/cobra"
)

func modelsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Inspect and activate registered models",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List registered models",
		RunE: func(cmd *cobra.Command, args []string) error {
			infra, _ := cmd.Flags().GetString("infrastructure")
			return a.withRegistry(cmd, func(ctx context.Context, reg *registry.Service) error {
				ms, err := reg.ListModels(ctx, models.Infrastructure(infra))
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tVERSION\tTYPE\tINFRA\tACTIVE")
				for _, m := range ms {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%t\n",
						m.ID, m.ModelName, m.Version, m.ModelType, m.Infrastructure(), m.IsActive)
				}
				return tw.Flush()
			})
		},
	}
	listCmd.Flags().String("infrastructure", "", "Filter by infrastructure: local or remote")
	cmd.AddCommand(listCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "toggle <model-id>",
		Short: "Flip a model's active flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRegistry(cmd, func(ctx context.Context, reg *registry.Service) error {
				m, err := reg.ToggleModelActive(ctx, args[0])
				if err != nil {
					return err
				}
				state := "inactive"
				if m.IsActive {
					state = "active"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s (%s) is now %s\n", m.ModelName, m.ID, state)
				return nil
			})
		},
	})

	return cmd
}

func infraCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "infra",
		Short: "Show or switch the active infrastructure",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the active infrastructure and active models",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRegistry(cmd, func(ctx context.Context, reg *registry.Service) error {
				cfg, err := reg.Settings(ctx)
				if err != nil {
					return err
				}
				active, err := reg.ActiveModels(ctx)
				if err != nil {
					return err
				}
				printInfra(cmd, cfg.ActiveModelType, active)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:       "switch <local|remote>",
		Short:     "Switch the active infrastructure",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(models.InfraLocal), string(models.InfraRemote)},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRegistry(cmd, func(ctx context.Context, reg *registry.Service) error {
				cfg, err := reg.SwitchInfrastructure(ctx, models.Infrastructure(args[0]))
				if err != nil {
					return err
				}
				active, err := reg.ActiveModels(ctx)
				if err != nil {
					return err
				}
				printInfra(cmd, cfg.ActiveModelType, active)
				return nil
			})
		},
	})

	return cmd
}

func printInfra(cmd *cobra.Command, infra models.Infrastructure, active map[string]string) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "infrastructure: %s\n", infra)

	types := make([]string, 0, len(active))
	for t := range active {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		fmt.Fprintf(out, "%s: %s\n", t, active[t])
	}
}
