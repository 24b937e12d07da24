package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/MimeLyc/srt-batch-translator/internal/service"
)

func newModelsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models offered by the LLM server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			svc, err := service.New(*cfg)
			if err != nil {
				return err
			}

			models, err := svc.ListModels(cmd.Context())
			if err != nil {
				return err
			}
			if len(models) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No models available at %s\n", cfg.LLM.APIURL)
				return nil
			}

			// the configured model wins, otherwise the first listed one is used
			selected := trimmedOr(cfg.LLM.Model, models[0].ID)
			rows := make([][]string, 0, len(models))
			for _, m := range models {
				mark := ""
				if m.ID == selected {
					mark = "*"
				}
				created := ""
				if m.Created > 0 {
					created = time.Unix(m.Created, 0).UTC().Format("2006-01-02")
				}
				rows = append(rows, []string{mark, m.ID, trimmedOr(m.OwnedBy, "-"), created})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"", "Model", "Owned By", "Created"},
				rows,
				nil,
			))
			return nil
		},
	}
}
