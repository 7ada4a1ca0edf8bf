package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hubevents/btcimport/pkg/gonogo"
	"github.com/hubevents/btcimport/pkg/importer"
)

// assessCmd represents the assess command
var assessCmd = &cobra.Command{
	Use:   "assess <run-result.json>",
	Short: "Recompute the go/no-go verdict over a persisted run result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		var result importer.RunResult
		if err := json.Unmarshal(data, &result); err != nil {
			return fmt.Errorf("decoding %s: %v", args[0], err)
		}

		v := gonogo.Assess(importer.Metrics(&result))
		fmt.Printf("Run %s (dryRun=%v)\n", result.Date, result.DryRun)
		fmt.Printf("  resolution rate: %.1f%%\n", v.ResolutionRate*100)
		fmt.Printf("  validation rate: %.1f%%\n", v.ValidationRate*100)
		fmt.Printf("  overall rate:    %.1f%%\n", v.OverallRate*100)
		if v.CanProceed {
			fmt.Println("Verdict: GO")
			return nil
		}
		fmt.Println("Verdict: NO-GO")
		for _, rec := range v.Recommendations {
			fmt.Println("  - " + rec)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(assessCmd)
}
