package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/RATDEO/lammastudio-sub000/internal/config"
	"github.com/RATDEO/lammastudio-sub000/internal/recipe"
)

func newRecipeCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recipe",
		Short: "Inspect and manage recipes directly against the store",
	}
	cmd.AddCommand(newRecipeListCmd(configPath))
	cmd.AddCommand(newRecipeGetCmd(configPath))
	cmd.AddCommand(newRecipeDeleteCmd(configPath))
	return cmd
}

func openStore(configPath string) (*recipe.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return recipe.Open(cfg.SqlitePath)
}

func newRecipeListCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every recipe",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(*configPath)
			if err != nil {
				return err
			}
			defer store.Close()

			recipes, err := store.List(context.Background())
			if err != nil {
				return err
			}
			if len(recipes) == 0 {
				cmd.Println("No recipes")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tBACKEND\tPORT\tMODEL PATH")
			for _, r := range recipes {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", r.ID, r.Name, r.Backend, r.Port, r.ModelPath)
			}
			return w.Flush()
		},
	}
}

func newRecipeGetCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Print one recipe as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(*configPath)
			if err != nil {
				return err
			}
			defer store.Close()

			r, found, err := store.Get(context.Background(), args[0])
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("recipe %q not found", args[0])
			}
			body, err := json.MarshalIndent(r, "", "  ")
			if err != nil {
				return err
			}
			cmd.Println(string(body))
			return nil
		},
	}
}

func newRecipeDeleteCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete one recipe",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(*configPath)
			if err != nil {
				return err
			}
			defer store.Close()

			deleted, err := store.Delete(context.Background(), args[0])
			if err != nil {
				return err
			}
			if !deleted {
				return fmt.Errorf("recipe %q not found", args[0])
			}
			cmd.Printf("deleted %s\n", args[0])
			return nil
		},
	}
}
