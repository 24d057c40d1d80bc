package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forPelevin/editclick/internal/pipeline"
	"github.com/forPelevin/editclick/internal/types"
)

func newPlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan <analysis.json>",
		Short: "Build the integrated document from a saved analysis without touching any video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(cmd, args[0])
		},
	}
	cmd.Flags().StringP("output", "o", "", "Document path (default: document.json next to the analysis)")
	return cmd
}

func runPlan(cmd *cobra.Command, analysisPath string) error {
	settings, err := loadSettings(cmd)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log := newLogger(cmd.ErrOrStderr())

	b, err := os.ReadFile(analysisPath)
	if err != nil {
		return err
	}
	var an types.Analysis
	if err := json.Unmarshal(b, &an); err != nil {
		return fmt.Errorf("parse %s: %w", analysisPath, err)
	}

	out, _ := cmd.Flags().GetString("output")
	if strings.TrimSpace(out) == "" {
		out = filepath.Join(filepath.Dir(analysisPath), "document.json")
	}
	doc, err := pipeline.Plan(an, settings, out, &log)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "document %s: kept %.3fs of %.3fs in %d intervals, dropped %d segments, %d shots\n%s\n",
		doc.ID, doc.EditedDuration, doc.SourceDuration, len(doc.Retained), doc.Dropped.Segments, doc.Dropped.Shots, out)
	return nil
}
