package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/bom-cli/internal/model"
	"github.com/sells-group/bom-cli/internal/table"
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Parse and enrich a BOM file",
	Long:  "Reads a CSV or XLSX parts list, infers its column mapping, parses every row and looks each part up in the catalog. The job is stored for later evaluation.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		file, _ := cmd.Flags().GetString("file")
		jobID, _ := cmd.Flags().GetString("job-id")
		output, _ := cmd.Flags().GetString("output")

		tbl, err := table.Open(ctx, file)
		if err != nil {
			return err
		}
		if len(tbl.Rows) == 0 {
			return eris.Errorf("enrich: %s has no data rows", file)
		}

		env, err := initEnv(ctx, "enrich")
		if err != nil {
			return err
		}
		defer env.Close()

		job, err := env.Orchestrator.Run(ctx, jobID, tbl.Rows)
		if job == nil {
			return err
		}
		if err != nil {
			zap.L().Error("enrich: job not stored", zap.Error(err))
		}

		if output != "" {
			if werr := writeJobFile(output, job); werr != nil {
				return werr
			}
		}
		formatJobSummary(os.Stdout, job)
		return err
	},
}

func writeJobFile(path string, job *model.Job) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "create %s", path)
	}
	defer f.Close() //nolint:errcheck

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return eris.Wrapf(enc.Encode(job), "write %s", path)
}

// formatJobSummary writes the job id, mapping, counts and one line per row.
func formatJobSummary(out io.Writer, job *model.Job) {
	s := job.Summary()
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Job:\t%s\n", job.ID)
	_, _ = fmt.Fprintf(w, "Mapping:\t%s\n", job.Mapping)
	_, _ = fmt.Fprintf(w, "Rows:\t%d\n", s.Total)
	_, _ = fmt.Fprintf(w, "Parsed:\t%d\n", s.Parsed)
	_, _ = fmt.Fprintf(w, "Enriched:\t%d\n", s.Enriched)
	_, _ = fmt.Fprintf(w, "Row errors:\t%d\n", s.RowErrors)
	if s.ProcessingError != "" {
		_, _ = fmt.Fprintf(w, "Warning:\t%s\n", s.ProcessingError)
	}
	_ = w.Flush()

	_, _ = fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ROW\tMPN\tQTY\tDESIGNATORS\tCATALOG")
	_, _ = fmt.Fprintln(w, "---\t---\t---\t-----------\t-------")
	for _, r := range job.Results {
		if r.Error != nil {
			_, _ = fmt.Fprintf(w, "%d\t-\t-\t-\t%s: %s\n", r.Position, r.Error.Error, r.Error.Details)
			continue
		}
		status := "not found"
		if r.Item.Catalog != nil {
			status = fmt.Sprintf("%s (%d alternatives)", r.Item.Catalog.ManufacturerName, len(r.Item.Catalog.SimilarParts))
		} else if r.Item.MPN() == "" {
			status = "no part number"
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\n",
			r.Position,
			r.Item.MPN(),
			r.Item.Quantity,
			shorten(fmt.Sprint(r.Item.Designators), 30),
			status,
		)
	}
	_ = w.Flush()
}

func shorten(s string, n int) string {
	if len(s) > n {
		return s[:n-3] + "..."
	}
	return s
}

func init() {
	enrichCmd.Flags().String("file", "", "path to a .csv or .xlsx BOM")
	enrichCmd.Flags().String("job-id", "", "job identifier (default: generated)")
	enrichCmd.Flags().String("output", "", "write the full job as JSON to this path")
	_ = enrichCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(enrichCmd)
}
