package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/kemicky/forage/pkg/forageable"
)

func newWatchCommand() *cobra.Command {
	var id int64

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream live snapshots until interrupted",
		Long: `Print the current records and then a fresh snapshot every time they change,
whether the change comes from this machine's other forage commands or from
any other process writing the same database file.`,
		Example: `  # Follow the whole list
  forage watch

  # Follow a single record
  forage watch --id 3`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			if a.cfg.Database.IsMemory() || !a.cfg.Database.WatchExternal {
				log.Warn().Msg("External change watching is off; only this process's writes will show")
			}

			out := cmd.OutOrStdout()
			if id > 0 {
				return follow(ctx, out, a.vm.RetrieveForageable(id).Observe(ctx), printRecord)
			}
			return follow(ctx, out, a.vm.AllForageables().Observe(ctx), printRecords)
		},
	}

	cmd.Flags().Int64Var(&id, "id", 0, "follow a single record")

	return cmd
}

func follow[T []forageable.Forageable | *forageable.Forageable](ctx context.Context, w io.Writer, snapshots <-chan T, render func(io.Writer, T) error) error {
	for snapshot := range snapshots {
		if !jsonOutput {
			fmt.Fprintln(w, mutedStyle.Render("── "+time.Now().Format(time.TimeOnly)))
		}
		if err := render(w, snapshot); err != nil {
			return err
		}
	}
	log.Debug().Err(ctx.Err()).Msg("Watch stopped")
	return nil
}
