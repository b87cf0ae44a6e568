package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"github.com/lysyi3m/tradewire/app/pipeline"
)

// printResult renders a summary table on a terminal and JSON otherwise.
func printResult(w io.Writer, result pipeline.RunResult) error {
	if !isTerminal(w) {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	_, err := fmt.Fprintln(w, renderResult(result))
	return err
}

func renderResult(result pipeline.RunResult) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Metric", "Value"})
	tw.AppendRows([]table.Row{
		{"Items checked", strconv.Itoa(result.ItemsChecked)},
		{"New items", strconv.Itoa(result.NewItemsFound)},
		{"Transactions extracted", strconv.Itoa(result.TransactionsExtracted)},
		{"Transactions added", strconv.Itoa(result.TransactionsAdded)},
		{"Errors", strconv.Itoa(len(result.Errors))},
		{"Duration", result.FinishedAt.Sub(result.StartedAt).Round(time.Millisecond).String()},
	})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})

	out := tw.Render()
	for _, e := range result.Errors {
		out += "\n  " + e
	}
	return out
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
