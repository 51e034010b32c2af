package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/debemdeboas/inkwell/internal/model"
)

func newDiscardCommand(ctx *commandContext) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "discard <draft-key>",
		Short: "Discard a cached draft",
		Long:  `Delete a cached draft and its local images. Articles already saved are not touched.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := model.DraftKey(args[0])
			if !key.Valid() {
				return fmt.Errorf("invalid draft key %q", args[0])
			}

			store, err := ctx.ensureStore()
			if err != nil {
				return err
			}
			rec, err := store.Load(cmd.Context(), key)
			if err != nil {
				return err
			}
			if rec == nil {
				return fmt.Errorf("no cached draft for %s", key)
			}

			out := cmd.OutOrStdout()
			if !force {
				fmt.Fprintf(out, "Discard draft %q (%s)? [y/N] ", rec.Title, key)
				response, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				response = strings.TrimSpace(strings.ToLower(response))
				if response != "y" && response != "yes" {
					fmt.Fprintln(out, "Cancelled.")
					return nil
				}
			}

			if err := store.Clear(cmd.Context(), key); err != nil {
				return err
			}
			fmt.Fprintln(out, successStyle.Render("Discarded "+string(key)))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip the confirmation prompt")
	return cmd
}
