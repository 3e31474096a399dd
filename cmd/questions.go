package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/bom-cli/internal/table"
)

var questionsCmd = &cobra.Command{
	Use:   "questions",
	Short: "Suggest setup questions for a BOM before evaluation",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		file, _ := cmd.Flags().GetString("file")
		tbl, err := table.Open(ctx, file)
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, "questions")
		if err != nil {
			return err
		}
		defer env.Close()

		questions, err := env.Inference.GenerateQuestions(ctx, tbl.Head(cfg.Batch.HeadRows))
		if err != nil {
			return eris.Wrap(err, "questions")
		}
		for i, q := range questions {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d. %s\n", i+1, q)
		}
		return nil
	},
}

func init() {
	questionsCmd.Flags().String("file", "", "path to a .csv or .xlsx BOM")
	_ = questionsCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(questionsCmd)
}
