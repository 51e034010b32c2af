package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/debemdeboas/inkwell/internal/asset"
	"github.com/debemdeboas/inkwell/internal/model"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	var showBody bool

	cmd := &cobra.Command{
		Use:   "show <draft-key>",
		Short: "Show a cached draft",
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

			fmt.Fprint(cmd.OutOrStdout(), renderRecord(rec, showBody))
			return nil
		},
	}
	cmd.Flags().BoolVar(&showBody, "body", false, "Print the markdown body")
	return cmd
}

func renderRecord(rec *model.DraftRecord, showBody bool) string {
	var sb strings.Builder
	field := func(name, value string) {
		fmt.Fprintf(&sb, "%s %s\n", headerStyle.Render(fmt.Sprintf("%-9s", name)), value)
	}

	field("Key", keyStyle.Render(string(rec.Key)))
	if rec.EntityID != nil {
		field("Article", string(*rec.EntityID))
	}
	field("Title", rec.Title)
	if rec.Slug != "" {
		field("Slug", rec.Slug)
	}
	if len(rec.Tags) > 0 {
		field("Tags", strings.Join(rec.Tags, ", "))
	}
	field("Modified", formatTime(rec.ModifiedAt))
	field("Cover", describeCover(rec.Cover))

	refs := asset.ExtractImageURLs(rec.Body)
	field("Images", fmt.Sprintf("%d referenced, %d uploaded, %d local", len(refs), len(rec.Uploaded), len(rec.Local)))

	names := make([]string, 0, len(rec.Local))
	for name := range rec.Local {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		h := rec.Local[name]
		fmt.Fprintf(&sb, "  %s %s\n", name, faintStyle.Render(fmt.Sprintf("%s, %s", h.MIMEType, formatSize(len(h.Data)))))
	}

	if showBody {
		sb.WriteString("\n")
		sb.WriteString(rec.Body)
		if !strings.HasSuffix(rec.Body, "\n") {
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func describeCover(c model.CoverState) string {
	switch c.Kind {
	case model.CoverRemote:
		return c.URL
	case model.CoverLocal:
		if c.Missing() {
			return warnStyle.Render(c.Name + " (file missing)")
		}
		return c.Name + faintStyle.Render(" (local)")
	default:
		return faintStyle.Render("none")
	}
}
