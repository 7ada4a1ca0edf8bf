package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hubevents/btcimport/internal/utils"
	"github.com/hubevents/btcimport/pkg/btccal"
	"github.com/hubevents/btcimport/pkg/emapi"
	"github.com/hubevents/btcimport/pkg/errlog"
	"github.com/hubevents/btcimport/pkg/gonogo"
	"github.com/hubevents/btcimport/pkg/importer"
	"github.com/hubevents/btcimport/pkg/resolver"
	"github.com/hubevents/btcimport/pkg/retry"
	"github.com/hubevents/btcimport/pkg/storage"
)

// leadDays is how far ahead the default import date sits: the calendar
// publishes events roughly a quarter in advance.
const leadDays = 90

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one import run for a calendar date",
	Long: `Fetches the source events for the target date, deletes the date's
existing target events, resolves/maps/validates each event and writes the
survivors. Dry-run is the default; pass --dry-run=false to write.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dateStr, _ := cmd.Flags().GetString("date")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		outDir, _ := cmd.Flags().GetString("out")
		record, _ := cmd.Flags().GetBool("db")
		dbPath, _ := cmd.Flags().GetString("dbpath")

		date := time.Now().AddDate(0, 0, leadDays)
		if dateStr != "" {
			parsed, err := time.Parse("2006-01-02", dateStr)
			if err != nil {
				return fmt.Errorf("invalid --date %q, want YYYY-MM-DD: %v", dateStr, err)
			}
			date = parsed
		}
		if outDir == "" {
			outDir = viper.GetString("import.output_dir")
		}
		if dbPath == "" {
			dbPath = viper.GetString("import.dbpath")
		}

		sourceURL := viper.GetString("btc.source_url")
		targetURL := viper.GetString("btc.target_url")
		appID := viper.GetString("btc.app_id")
		if sourceURL == "" || targetURL == "" || appID == "" {
			return fmt.Errorf("btc.source_url, btc.target_url and btc.app_id must be configured (~/.btcimport.yaml or environment)")
		}

		el, err := errlog.New(viper.GetString("import.error_dir"))
		if err != nil {
			return fmt.Errorf("opening error log: %v", err)
		}
		defer el.Close()

		hc := retry.NewClient(retry.DefaultPolicy(), el)
		api := emapi.NewClient(targetURL, appID, viper.GetString("btc.token"), hc)

		o := &importer.Orchestrator{
			Source:   btccal.NewClient(sourceURL, hc),
			Target:   api,
			Resolver: resolver.New(api, resolver.DefaultConfig(), resolver.NewCache(), el),
			Errors:   el,
			Opts: importer.Options{
				Date:      date,
				DryRun:    dryRun,
				OutputDir: outDir,
				AppID:     appID,
			},
		}

		result, runErr := o.Run(context.Background())
		verdict := gonogo.Assess(importer.Metrics(result))
		printRunSummary(result, verdict)

		if record {
			if err := recordRun(dbPath, result, verdict, o.FailedEvents()); err != nil {
				utils.Log.Errorf("Recording run history failed: %v", err)
			}
		}
		return runErr
	},
}

func printRunSummary(r *importer.RunResult, v gonogo.Assessment) {
	fmt.Printf("Run %s (dryRun=%v) finished in %dms\n", r.Date, r.DryRun, r.DurationMS)
	fmt.Printf("  fetched:    %d\n", r.BTCEvents.Total)
	fmt.Printf("  deleted:    %d\n", r.Deleted)
	fmt.Printf("  created:    %d\n", r.Created)
	fmt.Printf("  failed:     %d\n", r.Failed)
	fmt.Printf("  resolution: %d ok / %d failed\n", r.EntityResolution.Success, r.EntityResolution.Failure)
	fmt.Printf("  validation: %d ok / %d failed\n", r.Validation.Valid, r.Validation.Invalid)

	if v.CanProceed {
		fmt.Println("Verdict: GO")
		return
	}
	fmt.Println("Verdict: NO-GO")
	for _, rec := range v.Recommendations {
		fmt.Println("  - " + rec)
	}
}

func recordRun(dbPath string, r *importer.RunResult, v gonogo.Assessment, failed []importer.FailedEvent) error {
	db, err := storage.Open(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	failures := make([]storage.Failure, 0, len(failed))
	for _, f := range failed {
		failures = append(failures, storage.Failure{
			Stage:         f.Stage,
			SourceEventID: f.SourceEventID,
			Title:         f.Title,
			Reason:        strings.Join(f.Reasons, "; "),
		})
	}

	_, err = db.RecordRun(context.Background(), storage.Run{
		Date:              r.Date,
		StartedAt:         r.StartedAt,
		FinishedAt:        r.FinishedAt,
		DryRun:            r.DryRun,
		EventsTotal:       r.BTCEvents.Total,
		EventsProcessed:   r.BTCEvents.Processed,
		Deleted:           r.Deleted,
		Created:           r.Created,
		Failed:            r.Failed,
		ResolutionSuccess: r.EntityResolution.Success,
		ResolutionFailure: r.EntityResolution.Failure,
		ValidationValid:   r.Validation.Valid,
		ValidationInvalid: r.Validation.Invalid,
		CanProceed:        v.CanProceed,
	}, failures)
	return err
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().String("date", "", "Import date (YYYY-MM-DD). Default: today + 90 days")
	runCmd.Flags().Bool("dry-run", true, "Log intended writes without touching the target")
	runCmd.Flags().String("out", "", "Run artifact directory. Default: import.output_dir config key")
	runCmd.Flags().Bool("db", false, "Record the run in the local history database")
	runCmd.Flags().String("dbpath", "", "Path to SQLite DB file. Default: import.dbpath config key")
}
