// Package report implements the report command: daily summary and report
// generation from the command line.
package report

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/classcount/classcount-go/internal/conf"
	"github.com/classcount/classcount-go/internal/datastore"
	"github.com/classcount/classcount-go/internal/report"
)

// Command creates the report command.
func Command(settings *conf.Settings) *cobra.Command {
	var dateFlag string
	var summaryOnly bool

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Generate or preview the daily upload report",
		RunE: func(cmd *cobra.Command, args []string) error {
			date := time.Now()
			if dateFlag != "" {
				parsed, err := time.ParseInLocation(report.DateLayout, dateFlag, time.Local)
				if err != nil {
					return fmt.Errorf("date must be formatted as YYYY-MM-DD: %w", err)
				}
				date = parsed
			}
			return runReport(settings, date, summaryOnly)
		},
	}

	cmd.Flags().StringVar(&dateFlag, "date", "", "Report date as YYYY-MM-DD, defaults to today")
	cmd.Flags().BoolVar(&summaryOnly, "summary", false, "Print the summary without persisting a report")
	return cmd
}

func runReport(settings *conf.Settings, date time.Time, summaryOnly bool) error {
	store := datastore.New(settings)
	if store == nil {
		return fmt.Errorf("no database backend enabled")
	}
	if err := store.Open(); err != nil {
		return fmt.Errorf("opening datastore: %w", err)
	}
	defer func() { _ = store.Close() }()

	service := report.NewService(settings, store)

	if summaryOnly {
		summary, err := service.Summarize(date)
		if err != nil {
			return err
		}
		fmt.Printf("Date: %s\n", summary.Date)
		fmt.Printf("Total uploads: %d\n", summary.TotalUploads)
		fmt.Printf("Total duplicates: %d\n", summary.TotalDuplicates)
		return nil
	}

	generated, err := service.Generate(date)
	if err != nil {
		return err
	}
	fmt.Printf("Report generated for %s\n", generated.ReportDate)
	fmt.Printf("Total uploads: %d\n", generated.TotalUploads)
	fmt.Printf("Total duplicates: %d\n", generated.TotalDuplicates)
	fmt.Printf("Artifact: %s\n", generated.ReportPath)
	return nil
}
