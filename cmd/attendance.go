package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/facegate/facegate/internal/config"
)

var attendanceCmd = &cobra.Command{
	Use:   "attendance",
	Short: "Show attendance records for a day",
	Long: `Show the attendance records of one calendar day in check-in order.
Defaults to today; use --date for past days and --csv to print the raw
CSV export instead of the table.`,
	RunE: runAttendance,
}

func init() {
	rootCmd.AddCommand(attendanceCmd)

	attendanceCmd.Flags().String("date", "", "Day to show (YYYY-MM-DD, defaults to today)")
	attendanceCmd.Flags().Bool("csv", false, "Print CSV instead of a table")
}

func runAttendance(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	date := mustGetString(cmd, "date")
	if date == "" {
		date = time.Now().Format("2006-01-02")
	} else if _, err := time.Parse("2006-01-02", date); err != nil {
		return fmt.Errorf("invalid date %q, want YYYY-MM-DD", date)
	}

	lg, err := openLedger(cfg)
	if err != nil {
		return err
	}

	if mustGetBool(cmd, "csv") {
		data, err := lg.Export(date)
		if err != nil {
			return fmt.Errorf("exporting attendance for %s: %w", date, err)
		}
		_, err = os.Stdout.Write(data)
		return err
	}

	records, err := lg.Records(date)
	if err != nil {
		return fmt.Errorf("reading attendance for %s: %w", date, err)
	}
	if len(records) == 0 {
		fmt.Printf("No attendance records for %s\n", date)
		return nil
	}

	fmt.Printf("Attendance for %s:\n", date)
	for _, rec := range records {
		fmt.Printf("  %s  %s\n", rec.Time, rec.Name)
	}
	fmt.Printf("Total: %d\n", len(records))
	return nil
}
