package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/seisqc/seisqc/pkg/config"
	"github.com/seisqc/seisqc/pkg/export"
	"github.com/seisqc/seisqc/pkg/picker"
	"github.com/seisqc/seisqc/pkg/registry"
)

// Command flags
var (
	pickerFlags picker.Flags

	summaryOutput      string
	summaryXLSX        string
	summaryCompression string

	configInitPath  string
	configInitForce bool
)

var pickerCmd = &cobra.Command{
	Use:   "picker",
	Short: "Inspect picker configuration",
}

var pickerDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print the effective picker configuration",
	Long: `Print the picker options after defaults, the picker: section of the
configuration files and command line switches are applied.

Examples:
  scqc picker dump
  scqc picker dump --offline --send-detections -c scqc.yaml`,
	RunE: runPickerDump,
}

var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "List registered QC plugins",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, name := range registry.Names() {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		return nil
	},
}

var summarizeCmd = &cobra.Command{
	Use:   "summarize [archive-dir]",
	Short: "Summarize a Parquet report archive per stream and day",
	Long: `Aggregate the Parquet files written by the parquet sink into one row per
stream and UTC day: evaluated windows, mean and minimum availability, gaps
and overlaps.

Examples:
  scqc summarize /var/lib/scqc/reports -o daily.parquet
  scqc summarize ./reports -o daily.parquet --xlsx daily.xlsx`,
	Args: cobra.ExactArgs(1),
	RunE: runSummarize,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, _, _, err := setup()
		if err != nil {
			return err
		}
		for _, p := range mgr.GetPaths() {
			fmt.Fprintf(cmd.OutOrStdout(), "# loaded %s\n", p)
		}
		return mgr.Write(cmd.OutOrStdout())
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with default values",
	RunE:  runConfigInit,
}

func init() {
	pickerDumpCmd.Flags().BoolVar(&pickerFlags.Test, "test", false, "Test mode")
	pickerDumpCmd.Flags().BoolVar(&pickerFlags.Offline, "offline", false, "Offline mode")
	pickerDumpCmd.Flags().BoolVar(&pickerFlags.EP, "ep", false, "Event parameter output, implies --offline")
	pickerDumpCmd.Flags().BoolVar(&pickerFlags.DumpRecords, "dump-records", false, "Dump records")
	pickerDumpCmd.Flags().BoolVar(&pickerFlags.SendDetections, "send-detections", false, "Send detections")
	pickerDumpCmd.Flags().BoolVar(&pickerFlags.ExtraComments, "extra-comments", false, "Add extra pick comments")
	pickerCmd.AddCommand(pickerDumpCmd)

	summarizeCmd.Flags().StringVarP(&summaryOutput, "output", "o", "daily.parquet", "Summary Parquet file")
	summarizeCmd.Flags().StringVar(&summaryXLSX, "xlsx", "", "Also write the summary to an Excel workbook")
	summarizeCmd.Flags().StringVar(&summaryCompression, "compression", "snappy", "Parquet compression (snappy, gzip, zstd, uncompressed)")

	configInitCmd.Flags().StringVarP(&configInitPath, "output", "o", ".scqc.yaml", "File to write")
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing file")
	configCmd.AddCommand(configShowCmd, configInitCmd)

	rootCmd.AddCommand(pickerCmd, pluginsCmd, summarizeCmd, configCmd)
}

func runPickerDump(cmd *cobra.Command, args []string) error {
	_, cfg, _, err := setup()
	if err != nil {
		return err
	}
	pc, err := picker.Parse(cfg.Picker)
	if err != nil {
		return err
	}
	pc.ApplyFlags(pickerFlags)
	if err := pc.Validate(); err != nil {
		return err
	}
	return pc.Dump(cmd.OutOrStdout())
}

func runSummarize(cmd *cobra.Command, args []string) error {
	e, err := export.NewSummaryExporter(summaryCompression)
	if err != nil {
		return err
	}
	defer e.Close()

	n, err := e.DailySummary(args[0], summaryOutput)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d rows to %s\n", n, summaryOutput)

	if summaryXLSX != "" {
		rows, err := e.Rows()
		if err != nil {
			return err
		}
		if err := export.WriteXLSX(summaryXLSX, nil, rows); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", summaryXLSX)
	}
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(configInitPath); err == nil && !configInitForce {
		return fmt.Errorf("%s exists, use --force to overwrite", configInitPath)
	}

	// An unloaded manager holds the defaults.
	mgr := config.NewManager(config.WithSearchPaths())
	if err := mgr.Save(configInitPath); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", configInitPath)
	return nil
}
