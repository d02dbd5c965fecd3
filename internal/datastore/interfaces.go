// interfaces.go: this code defines the interface for the database operations
package datastore

import (
	"time"

	"gorm.io/gorm"

	"github.com/classcount/classcount-go/internal/conf"
)

// Interface abstracts the underlying database implementation and defines the
// operations consumed by the ingestion pipeline, the report generator and the
// API layer.
type Interface interface {
	Open() error
	Close() error

	// Image uploads
	SaveImageUpload(upload *ImageUpload) error
	UpdateImageAnalysis(id uint, hash *string, duplicate *bool, headCount *int) error
	GetImageUpload(id uint) (ImageUpload, error)
	GetAllImageUploads() ([]ImageUpload, error)
	GetRecentImageUploads(userID uint, limit int) ([]ImageUpload, error)
	DeleteImageUpload(id uint) error
	CountImageHashMatches(hash string, excludeID uint) (int64, error)
	GetFirstImageHashMatch(hash string, excludeID uint) (ImageUpload, error)
	GetDailySummary(date string) (DailySummary, error)

	// Notifications
	SaveNotification(notification *Notification) error
	GetNotification(id uint) (Notification, error)
	GetNotifications(userID uint) ([]Notification, error)
	GetPendingNotifications() ([]Notification, error)
	MarkNotificationSent(id uint, sentAt time.Time) error
	DeleteNotification(id uint) error

	// Daily reports
	SaveDailyReport(report *DailyReport) error
	GetDailyReport(date string) (DailyReport, error)
	GetDailyReportByID(id uint) (DailyReport, error)
	GetAllDailyReports() ([]DailyReport, error)
	DeleteDailyReport(id uint) error

	// Schools and users
	SaveSchool(school *School) error
	GetSchool(id uint) (School, error)
	GetAllSchools() ([]School, error)
	DeleteSchool(id uint) error
	SaveUser(user *User) error
	GetUser(id uint) (User, error)
	GetUserByEmail(email string) (User, error)
	GetAllUsers() ([]User, error)
}

// DataStore implements Interface using a GORM database.
type DataStore struct {
	DB *gorm.DB // GORM database instance
}

// New creates a new datastore instance based on the provided settings.
// Exactly one backend is enabled; conf validation guarantees this.
func New(settings *conf.Settings) Interface {
	switch {
	case settings.Output.SQLite.Enabled:
		return &SQLiteStore{Settings: settings}
	case settings.Output.MySQL.Enabled:
		return &MySQLStore{Settings: settings}
	default:
		return nil
	}
}
