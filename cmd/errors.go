package cmd

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hubevents/btcimport/pkg/errlog"
)

// errorsCmd represents the errors command
var errorsCmd = &cobra.Command{
	Use:   "errors",
	Short: "Inspect the structured error log",
}

// errorsStatsCmd represents the errors stats command
var errorsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Aggregate logged errors by category, severity and stage",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, _ := cmd.Flags().GetString("dir")
		if dir == "" {
			dir = viper.GetString("import.error_dir")
		}

		stats, err := errlog.ReadStats(dir)
		if err != nil {
			return err
		}
		if stats.Total == 0 {
			fmt.Println("No errors logged.")
			return nil
		}

		fmt.Printf("Total: %d\n\n", stats.Total)
		printBreakdown("SEVERITY", stats.BySeverity)
		printBreakdown("CATEGORY", stats.ByCategory)
		printBreakdown("STAGE", stats.ByStage)
		return nil
	},
}

func printBreakdown(label string, counts map[string]int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintf(w, "%s\tCOUNT\t\n", label)
	for _, k := range keys {
		fmt.Fprintf(w, "%s\t%d\t\n", k, counts[k])
	}
	w.Flush()
	fmt.Println()
}

func init() {
	rootCmd.AddCommand(errorsCmd)
	errorsCmd.AddCommand(errorsStatsCmd)
	errorsStatsCmd.Flags().String("dir", "", "Error log directory. Default: import.error_dir config key")
}
