package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/wellsgz/pingmon/internal/probe"
	"github.com/wellsgz/pingmon/internal/report"
	"github.com/wellsgz/pingmon/internal/storage"
)

var (
	logsTarget  string
	chartOutput string
	chartWidth  int
	chartHeight int
)

// logsCmd lists and reads the daily JSON outcome logs
var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "List the daily outcome logs",
	Long: `List, print and chart the daily outcome logs written by 'pingmon serve'.

Commands:
  pingmon logs                       List log files, newest first
  pingmon logs show 2024-05-01       Print one day's outcomes
  pingmon logs chart today -o out.png  Render a latency chart`,
	Args: cobra.NoArgs,
	RunE: runLogsList,
}

var logsShowCmd = &cobra.Command{
	Use:   "show <date|file>",
	Short: "Print the outcomes of one log file",
	Args:  cobra.ExactArgs(1),
	RunE:  runLogsShow,
}

var logsChartCmd = &cobra.Command{
	Use:   "chart <date|file>",
	Short: "Render a latency chart PNG from one log file",
	Args:  cobra.ExactArgs(1),
	RunE:  runLogsChart,
}

func init() {
	rootCmd.AddCommand(logsCmd)
	logsCmd.AddCommand(logsShowCmd, logsChartCmd)

	logsCmd.PersistentFlags().BoolVar(&outputAsJSON, "json", false, "output in JSON format")
	logsCmd.PersistentFlags().StringVarP(&logsTarget, "target", "t", "", "only outcomes for this address")
	logsChartCmd.Flags().StringVarP(&chartOutput, "output", "o", "latency.png", "output file")
	logsChartCmd.Flags().IntVar(&chartWidth, "width", 0, "image width in pixels")
	logsChartCmd.Flags().IntVar(&chartHeight, "height", 0, "image height in pixels")
}

// openLog returns the JSON log of the configured log directory
func openLog() (*storage.JSONLog, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return storage.NewJSONLog(cfg.Archive.LogDir)
}

// resolveLogFile maps a date (or "today") to its file; anything with a path
// separator or extension is used as is
func resolveLogFile(l *storage.JSONLog, arg string) string {
	if strings.ContainsRune(arg, os.PathSeparator) || strings.HasSuffix(arg, ".jsonl") {
		return arg
	}
	if arg == "today" {
		files, err := l.ListFiles()
		if err == nil && len(files) > 0 {
			return files[0]
		}
	}
	return filepath.Join(l.Dir(), "ping-"+arg+".jsonl")
}

func runLogsList(cmd *cobra.Command, args []string) error {
	l, err := openLog()
	if err != nil {
		return err
	}

	files, err := l.ListFiles()
	if err != nil {
		return err
	}
	if outputAsJSON {
		return printJSON(files)
	}

	if len(files) == 0 {
		fmt.Println("No log files found.")
		fmt.Println()
		fmt.Printf("Logs are stored in: %s\n", l.Dir())
		return nil
	}

	fmt.Println(headerStyle.Render(fmt.Sprintf("Logs in %s", l.Dir())))
	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			continue
		}
		fmt.Printf("  %s  %s\n", filepath.Base(f), mutedStyle.Render(fmt.Sprintf("%d bytes", info.Size())))
	}
	return nil
}

func runLogsShow(cmd *cobra.Command, args []string) error {
	l, err := openLog()
	if err != nil {
		return err
	}

	outcomes, err := storage.ReadFile(resolveLogFile(l, args[0]))
	if err != nil {
		return err
	}
	outcomes = filterTarget(outcomes)

	if outputAsJSON {
		return printJSON(outcomes)
	}
	for _, o := range outcomes {
		printOutcome(o)
	}
	return nil
}

func runLogsChart(cmd *cobra.Command, args []string) error {
	l, err := openLog()
	if err != nil {
		return err
	}

	path := resolveLogFile(l, args[0])
	outcomes, err := storage.ReadFile(path)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	err = report.RenderLatencyChart(&buf, filterTarget(outcomes), report.Options{
		Title:  "Latency " + strings.TrimSuffix(filepath.Base(path), ".jsonl"),
		Width:  chartWidth,
		Height: chartHeight,
	})
	if err != nil {
		return err
	}

	if err := os.WriteFile(chartOutput, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write chart: %w", err)
	}
	fmt.Printf("Chart written to %s\n", chartOutput)
	return nil
}

// filterTarget keeps the outcomes of --target, or all of them when unset
func filterTarget(outcomes []probe.Outcome) []probe.Outcome {
	if logsTarget == "" {
		return outcomes
	}
	var kept []probe.Outcome
	for _, o := range outcomes {
		if o.Target == logsTarget {
			kept = append(kept, o)
		}
	}
	return kept
}
