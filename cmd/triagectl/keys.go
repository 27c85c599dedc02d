package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/cardiotriage/internal/apikey"
	"github.com/kiranshivaraju/cardiotriage/internal/store"
	"github.com/kiranshivaraju/cardiotriage/pkg/models"
	"github.com/spf13/cobra"
)

func keysCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage API keys",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key and print it once",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			scopes, _ := cmd.Flags().GetStringSlice("scopes")

			raw, key, err := apikey.Generate(name, scopes)
			if err != nil {
				return err
			}
			return a.withStore(cmd, func(ctx context.Context, st store.Store) error {
				if err := st.CreateAPIKey(ctx, key); err != nil {
					return fmt.Errorf("create key: %w", err)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "id:     %s\n", key.ID)
				fmt.Fprintf(out, "scopes: %s\n", strings.Join(key.Scopes, ","))
				fmt.Fprintf(out, "key:    %s\n", raw)
				fmt.Fprintln(out, "Store this key now. It cannot be shown again.")
				return nil
			})
		},
	}
	createCmd.Flags().String("name", "", "Key name")
	createCmd.Flags().StringSlice("scopes", []string{models.ScopeDoctor}, "Scopes: doctor, admin")
	_ = createCmd.MarkFlagRequired("name")
	cmd.AddCommand(createCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List active API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd, func(ctx context.Context, st store.Store) error {
				keys, err := st.ListAPIKeys(ctx)
				if err != nil {
					return fmt.Errorf("list keys: %w", err)
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tPREFIX\tNAME\tSCOPES\tLAST USED")
				for _, k := range keys {
					lastUsed := "never"
					if k.LastUsedAt != nil {
						lastUsed = k.LastUsedAt.Format("2006-01-02 15:04")
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
						k.ID, k.KeyPrefix, k.Name, strings.Join(k.Scopes, ","), lastUsed)
				}
				return tw.Flush()
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid key id %q", args[0])
			}
			return a.withStore(cmd, func(ctx context.Context, st store.Store) error {
				err := st.RevokeAPIKey(ctx, id)
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("key %s not found", id)
				}
				if err != nil {
					return fmt.Errorf("revoke key: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "revoked %s\n", id)
				return nil
			})
		},
	})

	return cmd
}
