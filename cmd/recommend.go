package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var recommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Write a procurement recommendation for a part of a stored job",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		jobID, _ := cmd.Flags().GetString("job-id")
		mpn, _ := cmd.Flags().GetString("mpn")
		path, _ := cmd.Flags().GetString("assumptions")

		assumptions, err := loadAssumptions(path)
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, "evaluate")
		if err != nil {
			return err
		}
		defer env.Close()

		report, err := env.Evaluator.Recommend(ctx, jobID, mpn, assumptions)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), report)
		return err
	},
}

func init() {
	recommendCmd.Flags().String("job-id", "", "job identifier")
	recommendCmd.Flags().String("mpn", "", "original manufacturer part number")
	recommendCmd.Flags().String("assumptions", "", "YAML file of project assumptions")
	_ = recommendCmd.MarkFlagRequired("job-id")
	_ = recommendCmd.MarkFlagRequired("mpn")
	rootCmd.AddCommand(recommendCmd)
}
