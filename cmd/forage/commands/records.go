package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/kemicky/forage/pkg/forageable"
)

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all forageables",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			records, err := a.vm.AllForageables().Value(ctx)
			if err != nil {
				return err
			}
			return printRecords(cmd.OutOrStdout(), records)
		},
	}
}

func newGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one forageable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			f, err := a.vm.RetrieveForageable(id).Value(ctx)
			if err != nil {
				return err
			}
			if f == nil {
				return forageable.NewNotFoundError(id).WithOp("get")
			}
			return printRecord(cmd.OutOrStdout(), f)
		},
	}
}

// recordFlags are the field flags shared by add and update.
type recordFlags struct {
	name     string
	address  string
	inSeason bool
	notes    string
}

func (r *recordFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&r.name, "name", "", "what grows there")
	cmd.Flags().StringVar(&r.address, "address", "", "where to find it")
	cmd.Flags().BoolVar(&r.inSeason, "in-season", false, "mark as currently in season")
	cmd.Flags().StringVar(&r.notes, "notes", "", "free-form notes")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("address")
}

func newAddCommand() *cobra.Command {
	var r recordFlags

	cmd := &cobra.Command{
		Use:     "add",
		Short:   "Record a new forageable",
		Example: `  forage add --name Morel --address "123 Forest Rd" --in-season --notes "near oak trees"`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.vm.AddForageable(r.name, r.address, r.inSeason, r.notes); err != nil {
				return err
			}
			if err := a.settle(ctx); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "✓ Added %s (%s)\n", r.name, r.address)
			return nil
		},
	}

	r.register(cmd)
	return cmd
}

func newUpdateCommand() *cobra.Command {
	var r recordFlags

	cmd := &cobra.Command{
		Use:     "update <id>",
		Short:   "Replace every field of a forageable",
		Example: `  forage update 1 --name Morel --address "456 Forest Rd"`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.vm.UpdateForageable(id, r.name, r.address, r.inSeason, r.notes); err != nil {
				return err
			}
			if err := a.settle(ctx); err != nil {
				return err
			}

			f, err := a.vm.RetrieveForageable(id).Value(ctx)
			if err != nil {
				return err
			}
			if f == nil {
				log.Warn().Int64("id", id).Msg("No forageable with that id, nothing changed")
				return nil
			}

			fmt.Fprintf(cmd.OutOrStdout(), "✓ Updated %s\n", f)
			return nil
		},
	}

	r.register(cmd)
	return cmd
}

func newDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Remove a forageable",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.vm.DeleteForageableByID(id); err != nil {
				return err
			}
			if err := a.settle(ctx); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted #%d\n", id)
			return nil
		},
	}
}
