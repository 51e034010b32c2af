package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/debemdeboas/inkwell/internal/model"
)

func newListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cached drafts, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.ensureStore()
			if err != nil {
				return err
			}
			summaries, err := store.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list drafts: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(summaries) == 0 {
				fmt.Fprintln(out, faintStyle.Render("No cached drafts."))
				return nil
			}

			fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("%-46s  %-19s  %10s", "KEY", "SAVED", "SIZE")))
			for _, s := range summaries {
				line := fmt.Sprintf("%-46s  %-19s  %10s", s.Key, formatTime(s.SavedAt), formatSize(s.Size))
				if s.Schema != 0 && s.Schema != model.DraftSchemaVersion {
					line += "  " + warnStyle.Render(fmt.Sprintf("schema %d", s.Schema))
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
}
