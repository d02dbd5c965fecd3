// repository.go: shared GORM operations common to both database backends
package datastore

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/classcount/classcount-go/internal/errors"
)

// SaveImageUpload inserts a new ImageUpload row.
func (ds *DataStore) SaveImageUpload(upload *ImageUpload) error {
	if ds.DB == nil {
		return fmt.Errorf("database connection is not initialized")
	}
	if upload.UploadTimestamp.IsZero() {
		upload.UploadTimestamp = time.Now()
	}
	if err := ds.DB.Create(upload).Error; err != nil {
		return errors.New(fmt.Errorf("saving image upload: %w", err)).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return nil
}

// UpdateImageAnalysis writes the pipeline-derived fields of an upload in a
// single update. This is the one post-creation mutation an upload receives;
// a map is used so nil values are written out as SQL NULLs.
func (ds *DataStore) UpdateImageAnalysis(id uint, hash *string, duplicate *bool, headCount *int) error {
	values := map[string]any{
		"image_hash":     hash,
		"duplicate_flag": duplicate,
		"head_count":     headCount,
	}
	result := ds.DB.Model(&ImageUpload{}).Where("id = ?", id).Updates(values)
	if result.Error != nil {
		return errors.New(fmt.Errorf("updating image analysis for upload %d: %w", id, result.Error)).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	if result.RowsAffected == 0 {
		return errors.Newf("image upload %d not found", id).
			Component("datastore").
			Category(errors.CategoryNotFound).
			Build()
	}
	return nil
}

// GetImageUpload retrieves an upload by ID, preloading its owner.
func (ds *DataStore) GetImageUpload(id uint) (ImageUpload, error) {
	var upload ImageUpload
	if err := ds.DB.Preload("User").First(&upload, id).Error; err != nil {
		return ImageUpload{}, wrapLookupError(err, "image upload", id)
	}
	return upload, nil
}

// GetAllImageUploads returns all uploads, newest first.
func (ds *DataStore) GetAllImageUploads() ([]ImageUpload, error) {
	var uploads []ImageUpload
	if err := ds.DB.Preload("User").Order("upload_timestamp DESC").Find(&uploads).Error; err != nil {
		return nil, fmt.Errorf("getting image uploads: %w", err)
	}
	return uploads, nil
}

// GetRecentImageUploads returns the most recent uploads for one user.
func (ds *DataStore) GetRecentImageUploads(userID uint, limit int) ([]ImageUpload, error) {
	var uploads []ImageUpload
	err := ds.DB.Where("user_id = ?", userID).
		Order("upload_timestamp DESC").
		Limit(limit).
		Find(&uploads).Error
	if err != nil {
		return nil, fmt.Errorf("getting recent uploads for user %d: %w", userID, err)
	}
	return uploads, nil
}

// DeleteImageUpload removes an upload row. Notifications referencing it keep
// existing with a nulled image reference.
func (ds *DataStore) DeleteImageUpload(id uint) error {
	return ds.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&Notification{}).
			Where("image_upload_id = ?", id).
			Update("image_upload_id", nil).Error; err != nil {
			return fmt.Errorf("detaching notifications for upload %d: %w", id, err)
		}
		if err := tx.Delete(&ImageUpload{}, id).Error; err != nil {
			return fmt.Errorf("deleting upload %d: %w", id, err)
		}
		return nil
	})
}

// CountImageHashMatches counts uploads sharing a content hash, excluding the
// upload being classified. Note: there is no transactional guard between this
// lookup and the subsequent flag write, so two concurrent ingests of identical
// bytes can both observe zero matches. This is an accepted race.
func (ds *DataStore) CountImageHashMatches(hash string, excludeID uint) (int64, error) {
	var count int64
	err := ds.DB.Model(&ImageUpload{}).
		Where("image_hash = ? AND id <> ?", hash, excludeID).
		Count(&count).Error
	if err != nil {
		return 0, errors.New(fmt.Errorf("counting hash matches: %w", err)).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return count, nil
}

// GetFirstImageHashMatch returns the earliest upload sharing a content hash,
// excluding the upload being classified. A not-found result means the upload
// is the first of its content.
func (ds *DataStore) GetFirstImageHashMatch(hash string, excludeID uint) (ImageUpload, error) {
	var upload ImageUpload
	err := ds.DB.Where("image_hash = ? AND id <> ?", hash, excludeID).
		Order("upload_timestamp ASC").
		First(&upload).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ImageUpload{}, errors.New(fmt.Errorf("no upload matches hash: %w", err)).
				Component("datastore").
				Category(errors.CategoryNotFound).
				Build()
		}
		return ImageUpload{}, errors.New(fmt.Errorf("looking up hash match: %w", err)).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return upload, nil
}

// SaveNotification inserts a new notification row.
func (ds *DataStore) SaveNotification(notification *Notification) error {
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now()
	}
	if err := ds.DB.Create(notification).Error; err != nil {
		return errors.New(fmt.Errorf("saving notification: %w", err)).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return nil
}

// GetNotification retrieves a notification by ID.
func (ds *DataStore) GetNotification(id uint) (Notification, error) {
	var notification Notification
	if err := ds.DB.First(&notification, id).Error; err != nil {
		return Notification{}, wrapLookupError(err, "notification", id)
	}
	return notification, nil
}

// GetNotifications returns notifications for a user, or all when userID is 0.
func (ds *DataStore) GetNotifications(userID uint) ([]Notification, error) {
	var notifications []Notification
	query := ds.DB.Order("created_at DESC")
	if userID != 0 {
		query = query.Where("user_id = ?", userID)
	}
	if err := query.Find(&notifications).Error; err != nil {
		return nil, fmt.Errorf("getting notifications: %w", err)
	}
	return notifications, nil
}

// GetPendingNotifications returns notifications that have not been dispatched.
func (ds *DataStore) GetPendingNotifications() ([]Notification, error) {
	var notifications []Notification
	if err := ds.DB.Where("sent_at IS NULL").Order("created_at").Find(&notifications).Error; err != nil {
		return nil, fmt.Errorf("getting pending notifications: %w", err)
	}
	return notifications, nil
}

// MarkNotificationSent records the dispatch timestamp.
func (ds *DataStore) MarkNotificationSent(id uint, sentAt time.Time) error {
	result := ds.DB.Model(&Notification{}).Where("id = ?", id).Update("sent_at", sentAt)
	if result.Error != nil {
		return fmt.Errorf("marking notification %d sent: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return errors.Newf("notification %d not found", id).
			Component("datastore").
			Category(errors.CategoryNotFound).
			Build()
	}
	return nil
}

// DeleteNotification removes a notification row.
func (ds *DataStore) DeleteNotification(id uint) error {
	if err := ds.DB.Delete(&Notification{}, id).Error; err != nil {
		return fmt.Errorf("deleting notification %d: %w", id, err)
	}
	return nil
}

// SaveDailyReport inserts a report snapshot. A second insert for the same
// date violates the unique index and is surfaced as a conflict.
func (ds *DataStore) SaveDailyReport(report *DailyReport) error {
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = time.Now()
	}
	if err := ds.DB.Create(report).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return errors.New(fmt.Errorf("report for %s already exists: %w", report.ReportDate, err)).
				Component("datastore").
				Category(errors.CategoryConflict).
				Context("report_date", report.ReportDate).
				Build()
		}
		return errors.New(fmt.Errorf("saving daily report: %w", err)).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return nil
}

// GetDailyReport retrieves the report snapshot for a date.
func (ds *DataStore) GetDailyReport(date string) (DailyReport, error) {
	var report DailyReport
	if err := ds.DB.Where("report_date = ?", date).First(&report).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return DailyReport{}, errors.New(fmt.Errorf("daily report for %s not found: %w", date, err)).
				Component("datastore").
				Category(errors.CategoryNotFound).
				Build()
		}
		return DailyReport{}, fmt.Errorf("getting daily report for %s: %w", date, err)
	}
	return report, nil
}

// GetDailyReportByID retrieves a report snapshot by ID.
func (ds *DataStore) GetDailyReportByID(id uint) (DailyReport, error) {
	var report DailyReport
	if err := ds.DB.First(&report, id).Error; err != nil {
		return DailyReport{}, wrapLookupError(err, "daily report", id)
	}
	return report, nil
}

// GetAllDailyReports returns all report snapshots, newest date first.
func (ds *DataStore) GetAllDailyReports() ([]DailyReport, error) {
	var reports []DailyReport
	if err := ds.DB.Order("report_date DESC").Find(&reports).Error; err != nil {
		return nil, fmt.Errorf("getting daily reports: %w", err)
	}
	return reports, nil
}

// DeleteDailyReport removes a report snapshot.
func (ds *DataStore) DeleteDailyReport(id uint) error {
	if err := ds.DB.Delete(&DailyReport{}, id).Error; err != nil {
		return fmt.Errorf("deleting daily report %d: %w", id, err)
	}
	return nil
}

func wrapLookupError(err error, entity string, id uint) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errors.New(fmt.Errorf("%s %d not found: %w", entity, id, err)).
			Component("datastore").
			Category(errors.CategoryNotFound).
			Build()
	}
	return fmt.Errorf("getting %s %d: %w", entity, id, err)
}
