package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/terra-clan/estimate-engine/internal/catalog"
	"github.com/terra-clan/estimate-engine/internal/estimate"
)

var calcJSON bool

var calcCmd = &cobra.Command{
	Use:   "calc <estimate.json>",
	Short: "Compute the metrics of a stored estimate",
	Long: `Compute section totals and project metrics for an estimate in its
stored form (the estimate_json column). Use "-" to read from stdin.`,
	Args: cobra.ExactArgs(1),
	RunE: runCalc,
}

var exportCmd = &cobra.Command{
	Use:   "export <estimate.json>",
	Short: "Write a stored estimate as CSV to stdout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		est, sections, err := readEstimate(cmd, args[0])
		if err != nil {
			return err
		}
		return estimate.ExportCSV(est, sections, cmd.OutOrStdout())
	},
}

func init() {
	calcCmd.Flags().BoolVar(&calcJSON, "json", false, "output in JSON format")
}

type calcOutput struct {
	Sections map[estimate.SectionID]estimate.Totals `json:"sections"`
	Metrics  estimate.Metrics                       `json:"metrics"`
	Issues   []estimate.ProviderIssue               `json:"providerIssues,omitempty"`
}

func runCalc(cmd *cobra.Command, args []string) error {
	est, sections, err := readEstimate(cmd, args[0])
	if err != nil {
		return err
	}

	out := calcOutput{
		Sections: make(map[estimate.SectionID]estimate.Totals, len(est.Sections)),
		Metrics:  est.Metrics(),
		Issues:   est.ProviderIssues(),
	}
	for id, s := range est.Sections {
		out.Sections[id] = estimate.SectionTotals(s.Rows)
	}

	if calcJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SECTION\tESTIMATED\tACTUAL")
	for _, s := range est.Ordered(sections) {
		totals := out.Sections[s.ID]
		fmt.Fprintf(w, "%s\t%s\t%s\n", s.Title, humanize.Comma(totals.Est), humanize.Comma(totals.Act))
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Total project cost\t%s\n", humanize.Comma(out.Metrics.TotalProjectCost))
	fmt.Fprintf(w, "Total expenses\t%s\n", humanize.Comma(out.Metrics.TotalExpenses))
	fmt.Fprintf(w, "Net profit\t%s\n", humanize.Comma(out.Metrics.NetProfit))
	fmt.Fprintf(w, "Profitability\t%d%%\n", out.Metrics.Profitability)
	if err := w.Flush(); err != nil {
		return err
	}

	for _, issue := range out.Issues {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s row %d: %s\n", issue.SectionID, issue.RowIndex+1, issue.Check.Message)
	}
	return nil
}

// readEstimate decodes a stored estimate from path, or stdin for "-"
func readEstimate(cmd *cobra.Command, path string) (*estimate.Estimate, *catalog.Loader, error) {
	cfg, err := offlineConfig()
	if err != nil {
		return nil, nil, err
	}

	sections, err := loadSections(cfg)
	if err != nil {
		return nil, nil, err
	}

	var data []byte
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read estimate: %w", err)
	}

	est, err := estimate.Load(data, sections)
	if err != nil {
		return nil, nil, err
	}
	return est, sections, nil
}
