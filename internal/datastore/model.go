// model.go this code defines the data model for the application
package datastore

import "time"

// School is reference data owning zero or more users.
type School struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"size:255;not null;index:idx_schools_name"`
	Address   string `gorm:"type:text"`
	CreatedAt time.Time
	UpdatedAt time.Time
	Users     []User `gorm:"foreignKey:SchoolID;constraint:OnDelete:CASCADE"`
}

// User roles
const (
	RoleAdmin    = "admin"
	RoleUploader = "uploader"
	RoleViewer   = "viewer"
)

// User owns uploads and notifications.
type User struct {
	ID           uint   `gorm:"primaryKey"`
	SchoolID     uint   `gorm:"index;not null"`
	School       School `gorm:"foreignKey:SchoolID"`
	Email        string `gorm:"size:255;uniqueIndex;not null"`
	FirstName    string `gorm:"size:150"`
	LastName     string `gorm:"size:150"`
	Role         string `gorm:"size:30;default:uploader"`
	PasswordHash string `gorm:"size:255" json:"-"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ImageUpload is one ingested classroom image. The derived fields (ImageHash,
// DuplicateFlag, HeadCount) are nullable until the ingestion pipeline computes
// them; the pipeline is the only writer of those fields and writes them once.
type ImageUpload struct {
	ID               uint      `gorm:"primaryKey"`
	UserID           uint      `gorm:"index;not null"`
	User             User      `gorm:"foreignKey:UserID"`
	ImagePath        string    `gorm:"size:512;not null"` // stored-image reference
	UploadTimestamp  time.Time `gorm:"index:idx_image_uploads_ts;not null"`
	OriginalFilename string    `gorm:"size:512"`
	ImageHash        *string   `gorm:"size:128;index:idx_image_uploads_hash"`
	DuplicateFlag    *bool     // nil = unknown, never evaluated
	Attendance       int       `gorm:"not null"` // caller-supplied expected attendance
	HeadCount        *int      // nil until inference completes
}

// Notification types
const (
	TypeDuplicateAlert = "duplicate_alert"
	TypeDailyReport    = "daily_report"
)

// Notification is created by the core pipeline; dispatch (marking sent) is a
// separate downstream concern. ImageUploadID is a weak reference and becomes
// null when the upload is deleted.
type Notification struct {
	ID            uint         `gorm:"primaryKey"`
	ImageUploadID *uint        `gorm:"index"`
	ImageUpload   *ImageUpload `gorm:"foreignKey:ImageUploadID;constraint:OnDelete:SET NULL"`
	UserID        uint         `gorm:"index;not null"`
	Type          string       `gorm:"size:30;index:idx_notifications_type;not null"`
	Message       string       `gorm:"type:text;not null"`
	CreatedAt     time.Time
	SentAt        *time.Time // nil until the dispatcher marks it sent
}

// DailyReport is a per-date snapshot of upload totals. The unique index on
// ReportDate enforces at most one report per calendar date.
type DailyReport struct {
	ID              uint   `gorm:"primaryKey"`
	ReportDate      string `gorm:"size:10;uniqueIndex;not null"` // YYYY-MM-DD
	TotalUploads    int    `gorm:"not null"`
	TotalDuplicates int    `gorm:"not null"`
	ReportPath      string `gorm:"size:512"` // generated artifact reference
	GeneratedAt     time.Time
}

// DailySummary holds on-demand per-day totals computed from upload rows.
type DailySummary struct {
	Date            string `json:"date"`
	TotalUploads    int64  `json:"total_uploads"`
	TotalDuplicates int64  `json:"total_duplicates"`
}
