// Package report computes on-demand daily upload statistics and generates
// persisted daily report snapshots.
package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/classcount/classcount-go/internal/conf"
	"github.com/classcount/classcount-go/internal/datastore"
	"github.com/classcount/classcount-go/internal/errors"
	"github.com/classcount/classcount-go/internal/imagestore"
	"github.com/classcount/classcount-go/internal/logging"
)

// DateLayout is the calendar-date format used for summaries and report keys.
const DateLayout = "2006-01-02"

// Service provides daily summaries and report generation.
type Service struct {
	settings  *conf.Settings
	store     datastore.Interface
	artifacts *imagestore.Store
	logger    *slog.Logger
}

// NewService creates a report service writing artifacts under the configured
// report path.
func NewService(settings *conf.Settings, store datastore.Interface) *Service {
	return &Service{
		settings:  settings,
		store:     store,
		artifacts: imagestore.New(settings.Storage.ReportPath),
		logger:    logging.ForService("report"),
	}
}

// Summarize computes upload and duplicate totals for one local calendar day.
// Pure read; nothing is persisted.
func (s *Service) Summarize(date time.Time) (datastore.DailySummary, error) {
	return s.store.GetDailySummary(date.Format(DateLayout))
}

// Generate snapshots the daily summary into a DailyReport row and renders a
// CSV artifact. At most one report may exist per calendar date; a second
// generation attempt fails with a conflict and leaves the first report
// untouched.
func (s *Service) Generate(date time.Time) (datastore.DailyReport, error) {
	dateStr := date.Format(DateLayout)

	if existing, err := s.store.GetDailyReport(dateStr); err == nil {
		return datastore.DailyReport{}, errors.Newf("daily report for %s already generated at %s",
			dateStr, existing.GeneratedAt.Format(time.RFC3339)).
			Component("report").
			Category(errors.CategoryConflict).
			Context("report_date", dateStr).
			Build()
	} else if !errors.IsNotFound(err) {
		return datastore.DailyReport{}, err
	}

	summary, err := s.store.GetDailySummary(dateStr)
	if err != nil {
		return datastore.DailyReport{}, err
	}

	ref, err := s.renderArtifact(&summary)
	if err != nil {
		return datastore.DailyReport{}, err
	}

	report := datastore.DailyReport{
		ReportDate:      dateStr,
		TotalUploads:    int(summary.TotalUploads),
		TotalDuplicates: int(summary.TotalDuplicates),
		ReportPath:      ref,
		GeneratedAt:     time.Now(),
	}
	// The unique index on report_date backstops the pre-check against
	// concurrent generation attempts for the same date.
	if err := s.store.SaveDailyReport(&report); err != nil {
		return datastore.DailyReport{}, err
	}

	s.notifyAdmins(&report)

	s.logger.Info("daily report generated",
		"date", dateStr,
		"total_uploads", report.TotalUploads,
		"total_duplicates", report.TotalDuplicates,
		"artifact", ref)
	return report, nil
}

// renderArtifact writes the summary as a CSV file and returns its reference.
func (s *Service) renderArtifact(summary *datastore.DailySummary) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	records := [][]string{
		{"date", "total_uploads", "total_duplicates"},
		{summary.Date, strconv.FormatInt(summary.TotalUploads, 10), strconv.FormatInt(summary.TotalDuplicates, 10)},
	}
	if err := w.WriteAll(records); err != nil {
		return "", errors.New(fmt.Errorf("rendering report artifact: %w", err)).
			Component("report").
			Category(errors.CategoryFileIO).
			Build()
	}
	return s.artifacts.Save(buf.Bytes(), summary.Date+".csv")
}

// notifyAdmins creates a daily-report notification for each admin user.
// Failures are logged, not fatal; the report itself is already persisted.
func (s *Service) notifyAdmins(report *datastore.DailyReport) {
	users, err := s.store.GetAllUsers()
	if err != nil {
		s.logger.Warn("cannot list users for report notifications", "error", err)
		return
	}
	message := fmt.Sprintf("Daily report for %s: %d uploads, %d duplicates",
		report.ReportDate, report.TotalUploads, report.TotalDuplicates)
	for i := range users {
		if users[i].Role != datastore.RoleAdmin {
			continue
		}
		notification := datastore.Notification{
			UserID:  users[i].ID,
			Type:    datastore.TypeDailyReport,
			Message: message,
		}
		if err := s.store.SaveNotification(&notification); err != nil {
			s.logger.Warn("failed to create report notification",
				"user_id", users[i].ID, "error", err)
		}
	}
}
