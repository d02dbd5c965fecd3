// internal/datastore/analytics.go
package datastore

import (
	"fmt"
	"time"

	"github.com/classcount/classcount-go/internal/errors"
)

// GetDailySummary computes per-day upload and duplicate totals for one local
// calendar date (YYYY-MM-DD). The day window is computed in Go as a half-open
// range of local midnights; SQL DATE() is avoided because SQLite normalizes
// offset-bearing timestamps to UTC before extracting the date, which shifts
// uploads near local midnight onto the wrong day. Pure read.
func (ds *DataStore) GetDailySummary(date string) (DailySummary, error) {
	dayStart, err := time.ParseInLocation("2006-01-02", date, time.Local)
	if err != nil {
		return DailySummary{}, errors.New(fmt.Errorf("invalid summary date %q: %w", date, err)).
			Component("datastore").
			Category(errors.CategoryValidation).
			Build()
	}
	dayEnd := dayStart.AddDate(0, 0, 1)

	summary := DailySummary{Date: date}

	err = ds.DB.Model(&ImageUpload{}).
		Where("upload_timestamp >= ? AND upload_timestamp < ?", dayStart, dayEnd).
		Count(&summary.TotalUploads).Error
	if err != nil {
		return DailySummary{}, fmt.Errorf("counting uploads for %s: %w", date, err)
	}

	err = ds.DB.Model(&ImageUpload{}).
		Where("upload_timestamp >= ? AND upload_timestamp < ? AND duplicate_flag = ?", dayStart, dayEnd, true).
		Count(&summary.TotalDuplicates).Error
	if err != nil {
		return DailySummary{}, fmt.Errorf("counting duplicates for %s: %w", date, err)
	}

	return summary, nil
}
