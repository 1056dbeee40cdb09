// Package report renders aggregated profiling statistics as a markdown
// document with an executive summary and a per-operation breakdown.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/commercelabs/cuprof/aggregate"
)

// now is stubbed in tests for a stable timestamp.
var now = time.Now

// Generate writes the full markdown report for the given statistics.
// Empty statistics render explicit "no data" placeholders rather than
// an empty table.
func Generate(w io.Writer, opStats map[string]aggregate.OperationStats) error {
	writeHeader(w, opStats)
	writeExecutiveSummary(w, opStats)
	writeBreakdown(w, opStats)

	return nil
}

// GenerateJSON writes the statistics as indented JSON, sorted by
// descending mean compute units.
func GenerateJSON(w io.Writer, opStats map[string]aggregate.OperationStats) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(sortByMeanCU(opStats))
}

// WriteFile writes the markdown report to path, overwriting any
// previous report.
func WriteFile(path string, opStats map[string]aggregate.OperationStats) error {
	return writeFile(path, opStats, Generate)
}

// WriteFileJSON writes the JSON statistics to path.
func WriteFileJSON(path string, opStats map[string]aggregate.OperationStats) error {
	return writeFile(path, opStats, GenerateJSON)
}

func writeFile(
	path string,
	opStats map[string]aggregate.OperationStats,
	generate func(io.Writer, map[string]aggregate.OperationStats) error,
) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report %s: %w", path, err)
	}

	if err := generate(f, opStats); err != nil {
		f.Close()

		return err
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("close report %s: %w", path, err)
	}

	return nil
}

func writeHeader(w io.Writer, opStats map[string]aggregate.OperationStats) {
	fmt.Fprintln(w, "# Commerce Program - CU Analysis Report")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Generated on: %s\n\n", now().Format("2006-01-02 15:04:05"))

	totalCalls := 0
	for _, s := range opStats {
		totalCalls += s.TotalCalls
	}

	fmt.Fprintf(w, "Total operation types analyzed: %d\n", len(opStats))
	fmt.Fprintf(w, "Total test calls analyzed: %d\n\n", totalCalls)
}

func writeExecutiveSummary(
	w io.Writer,
	opStats map[string]aggregate.OperationStats,
) {
	fmt.Fprintln(w, "## Executive Summary")
	fmt.Fprintln(w)

	if len(opStats) == 0 {
		fmt.Fprintln(w, "No profiling data available.")
		fmt.Fprintln(w)

		return
	}

	sorted := sortByMeanCU(opStats)
	mostExpensive := sorted[0]
	leastExpensive := sorted[len(sorted)-1]

	var totalCU uint64

	peakCU := sorted[0]
	peakTx := sorted[0]

	for _, s := range sorted {
		totalCU += s.TotalCU

		if s.MaxCU > peakCU.MaxCU {
			peakCU = s
		}
		if s.MaxTxSize > peakTx.MaxTxSize {
			peakTx = s
		}
	}

	fmt.Fprintf(w, "- **Most expensive operation**: `%s` (%.0f CUs average)\n",
		mostExpensive.Operation, mostExpensive.MeanCU)
	fmt.Fprintf(w, "- **Least expensive operation**: `%s` (%.0f CUs average)\n",
		leastExpensive.Operation, leastExpensive.MeanCU)
	fmt.Fprintf(w, "- **Total CU consumption**: %s CUs across all operations\n",
		groupThousands(totalCU))
	fmt.Fprintf(w, "- **Peak single operation**: `%s` (%d CUs)\n",
		peakCU.Operation, peakCU.MaxCU)
	fmt.Fprintf(w, "- **Largest transaction**: `%s` (%d bytes)\n\n",
		peakTx.Operation, peakTx.MaxTxSize)
}

func writeBreakdown(w io.Writer, opStats map[string]aggregate.OperationStats) {
	fmt.Fprintln(w, "## Detailed Operation Breakdown")
	fmt.Fprintln(w)

	if len(opStats) == 0 {
		fmt.Fprintln(w, "No profiling data available.")
		fmt.Fprintln(w)

		return
	}

	fmt.Fprintln(w, "| Operation | Total Calls | Mean CU | Max CU | TX Size |")
	fmt.Fprintln(w, "|-----------|-------------|---------|--------|---------|")

	for _, s := range sortByMeanCU(opStats) {
		fmt.Fprintf(w, "| %s | %d | %s | %s | %d bytes |\n",
			s.Operation,
			s.TotalCalls,
			groupThousands(uint64(math.Round(s.MeanCU))),
			groupThousands(s.MaxCU),
			s.MaxTxSize,
		)
	}

	fmt.Fprintln(w)
}

// sortByMeanCU orders statistics by descending mean compute units,
// with name as tiebreak so output is deterministic.
func sortByMeanCU(
	opStats map[string]aggregate.OperationStats,
) []aggregate.OperationStats {
	sorted := make([]aggregate.OperationStats, 0, len(opStats))
	for _, s := range opStats {
		sorted = append(sorted, s)
	}

	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].MeanCU != sorted[j].MeanCU {
			return sorted[i].MeanCU > sorted[j].MeanCU
		}

		return sorted[i].Operation < sorted[j].Operation
	})

	return sorted
}

// groupThousands renders v with comma separators, e.g. 1234567 ->
// "1,234,567".
func groupThousands(v uint64) string {
	s := strconv.FormatUint(v, 10)
	if len(s) <= 3 {
		return s
	}

	var out []byte

	lead := len(s) % 3
	if lead > 0 {
		out = append(out, s[:lead]...)
	}

	for i := lead; i < len(s); i += 3 {
		if len(out) > 0 {
			out = append(out, ',')
		}

		out = append(out, s[i:i+3]...)
	}

	return string(out)
}
