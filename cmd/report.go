package cmd

import (
	"encoding/json"
	"io"

	"github.com/crytic/routerguard/analysis/storage"
	"github.com/crytic/routerguard/deployment"
	"github.com/crytic/routerguard/logging/colors"
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
)

// writeJSONReport writes an indented JSON report followed by a newline.
func writeJSONReport(w io.Writer, report any) error {
	b, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return errors.WithStack(err)
	}
	b = append(b, '\n')
	_, err = w.Write(b)
	return errors.WithStack(err)
}

// logRouterReports logs the outcome of each router validation.
func logRouterReports(reports []RouterReport) {
	for _, report := range reports {
		if len(report.Errors) == 0 {
			cmdLogger.Info(colors.GreenBold, "[PASSED] ", colors.Reset, "Router ", colors.Bold, report.Router, colors.Reset)
			continue
		}
		cmdLogger.Error(colors.RedBold, "[FAILED] ", colors.Reset, "Router ", colors.Bold, report.Router, colors.Reset,
			" has ", len(report.Errors), " error(s)")
		for _, err := range report.Errors {
			cmdLogger.Error("  ", colors.Red, "- ", colors.Reset, err.Msg)
		}
	}
}

// StorageReport is the outcome of comparing a storage struct map against a baseline.
type StorageReport struct {
	// Baseline describes what the current map was compared against
	Baseline string              `json:"baseline"`
	Diff     storage.StorageDiff `json:"diff"`
	Passed   bool                `json:"passed"`
}

// logStorageReport logs the changes of a storage diff, colored by how safe they are.
func logStorageReport(report StorageReport) {
	if report.Diff.IsEmpty() {
		cmdLogger.Info(colors.GreenBold, "[PASSED] ", colors.Reset, "Storage layout is unchanged since ", colors.Bold, report.Baseline, colors.Reset)
		return
	}
	for _, entry := range report.Diff.Appends {
		cmdLogger.Info("  ", colors.Green, "+ ", colors.Reset, storage.DescribeEntry(entry))
	}
	for _, entry := range report.Diff.Modifications {
		cmdLogger.Warn("  ", colors.Yellow, "~ ", colors.Reset, storage.DescribeEntry(entry))
	}
	for _, entry := range report.Diff.Removals {
		cmdLogger.Warn("  ", colors.Red, "- ", colors.Reset, storage.DescribeEntry(entry))
	}
	if report.Passed {
		cmdLogger.Info(colors.GreenBold, "[PASSED] ", colors.Reset, "Storage layout changes since ", colors.Bold, report.Baseline, colors.Reset, " are accepted")
	} else {
		cmdLogger.Error(colors.RedBold, "[FAILED] ", colors.Reset, "Storage layout changes since ", colors.Bold, report.Baseline, colors.Reset, " are unsafe")
	}
}

// logStorageHistory logs the snapshots saved under each layout key, keys in lexicographic order.
func logStorageHistory(history map[string][]deployment.LayoutSnapshot) {
	if len(history) == 0 {
		cmdLogger.Info("No layout snapshots have been saved yet")
		return
	}
	keys := make([]string, 0, len(history))
	for key := range history {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	for _, key := range keys {
		cmdLogger.Info("Layout key ", colors.Bold, key, colors.Reset, ": ", len(history[key]), " snapshot(s)")
		for _, snapshot := range history[key] {
			cmdLogger.Info("  ", colors.Cyan, snapshot.CreatedAt.Format("2006-01-02 15:04:05"), colors.Reset, " ",
				snapshot.ID, " (", len(snapshot.Entries), " struct(s))")
		}
	}
}
