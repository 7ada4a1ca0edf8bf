package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hubevents/btcimport/pkg/btccal"
	"github.com/hubevents/btcimport/pkg/errlog"
	"github.com/hubevents/btcimport/pkg/retry"
)

// organizersCmd represents the organizers command
var organizersCmd = &cobra.Command{
	Use:   "organizers",
	Short: "List the source calendar's organizers",
	Long:  "Lists every organizer the calendar exposes, a diagnostic aid for extending the resolver configuration.",
	RunE: func(cmd *cobra.Command, args []string) error {
		sourceURL := viper.GetString("btc.source_url")
		if sourceURL == "" {
			return fmt.Errorf("btc.source_url must be configured (~/.btcimport.yaml or environment)")
		}

		el, err := errlog.New(viper.GetString("import.error_dir"))
		if err != nil {
			return fmt.Errorf("opening error log: %v", err)
		}
		defer el.Close()

		src := btccal.NewClient(sourceURL, retry.NewClient(retry.DefaultPolicy(), el))
		orgs, err := src.Organizers(context.Background())
		if err != nil {
			return err
		}
		if len(orgs) == 0 {
			fmt.Println("No organizers found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tSLUG\t")
		for _, o := range orgs {
			fmt.Fprintf(w, "%d\t%s\t%s\t\n", o.ID, o.Name, o.Slug)
		}
		w.Flush()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(organizersCmd)
}
