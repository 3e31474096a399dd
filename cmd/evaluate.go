package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/bom-cli/internal/model"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Judge alternatives for a part of a stored job",
	Long:  "Without --candidate every similar part is judged. With --part the original part itself is judged against the assumptions.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		jobID, _ := cmd.Flags().GetString("job-id")
		mpn, _ := cmd.Flags().GetString("mpn")
		candidate, _ := cmd.Flags().GetString("candidate")
		part, _ := cmd.Flags().GetBool("part")
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

		var result any
		switch {
		case part:
			result = env.Evaluator.EvaluatePart(ctx, jobID, mpn, assumptions)
		case candidate != "":
			result = env.Evaluator.Evaluate(ctx, jobID, mpn, candidate, assumptions)
		default:
			result = env.Evaluator.EvaluateAll(ctx, jobID, mpn, assumptions)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

// loadAssumptions reads a YAML (or JSON) mapping of project constraints. An
// empty path yields no assumptions.
func loadAssumptions(path string) (model.Assumptions, error) {
	if path == "" {
		return model.Assumptions{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read assumptions %s", path)
	}
	var a model.Assumptions
	if err := yaml.Unmarshal(data, &a); err != nil {
		return nil, eris.Wrapf(err, "parse assumptions %s", path)
	}
	if a == nil {
		a = model.Assumptions{}
	}
	return a, nil
}

func init() {
	evaluateCmd.Flags().String("job-id", "", "job identifier")
	evaluateCmd.Flags().String("mpn", "", "original manufacturer part number")
	evaluateCmd.Flags().String("candidate", "", "candidate part number (default: all similar parts)")
	evaluateCmd.Flags().Bool("part", false, "judge the original part instead of its alternatives")
	evaluateCmd.Flags().String("assumptions", "", "YAML file of project assumptions")
	_ = evaluateCmd.MarkFlagRequired("job-id")
	_ = evaluateCmd.MarkFlagRequired("mpn")
	rootCmd.AddCommand(evaluateCmd)
}
