package report

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classcount/classcount-go/internal/conf"
	"github.com/classcount/classcount-go/internal/datastore"
	"github.com/classcount/classcount-go/internal/errors"
)

func setupService(t *testing.T) (*Service, datastore.Interface) {
	t.Helper()
	settings := &conf.Settings{}
	settings.Storage.ReportPath = t.TempDir()
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = filepath.Join(t.TempDir(), "report.db")

	store := datastore.New(settings)
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })
	return NewService(settings, store), store
}

func seedDay(t *testing.T, store datastore.Interface, day time.Time, uploads, duplicates int) {
	t.Helper()
	school := datastore.School{Name: "Test School"}
	require.NoError(t, store.SaveSchool(&school))
	user := datastore.User{SchoolID: school.ID, Email: "teacher@example.com", Role: datastore.RoleUploader}
	require.NoError(t, store.SaveUser(&user))

	hash := "feedface"
	for i := 0; i < uploads; i++ {
		upload := datastore.ImageUpload{
			UserID:          user.ID,
			ImagePath:       "x.jpg",
			UploadTimestamp: day.Add(time.Duration(i) * time.Minute),
			Attendance:      20,
		}
		require.NoError(t, store.SaveImageUpload(&upload))
		dup := i < duplicates
		require.NoError(t, store.UpdateImageAnalysis(upload.ID, &hash, &dup, nil))
	}
}

func TestSummarize(t *testing.T) {
	service, store := setupService(t)
	day := time.Date(2026, 8, 30, 9, 0, 0, 0, time.Local)
	seedDay(t, store, day, 4, 1)

	summary, err := service.Summarize(day)
	require.NoError(t, err)
	assert.Equal(t, "2026-08-30", summary.Date)
	assert.EqualValues(t, 4, summary.TotalUploads)
	assert.EqualValues(t, 1, summary.TotalDuplicates)

	// Summarize persists nothing.
	_, err = store.GetDailyReport("2026-08-30")
	assert.True(t, errors.IsNotFound(err))
}

func TestGenerate(t *testing.T) {
	service, store := setupService(t)
	day := time.Date(2026, 8, 30, 9, 0, 0, 0, time.Local)
	seedDay(t, store, day, 3, 2)

	generated, err := service.Generate(day)
	require.NoError(t, err)
	assert.Equal(t, "2026-08-30", generated.ReportDate)
	assert.Equal(t, 3, generated.TotalUploads)
	assert.Equal(t, 2, generated.TotalDuplicates)
	assert.NotEmpty(t, generated.ReportPath)

	artifact := filepath.Join(service.settings.Storage.ReportPath, generated.ReportPath)
	data, err := os.ReadFile(artifact) //nolint:gosec // G304: test-owned path
	require.NoError(t, err)
	assert.Contains(t, string(data), "2026-08-30,3,2")
}

func TestGenerateTwiceConflicts(t *testing.T) {
	service, store := setupService(t)
	day := time.Date(2026, 8, 30, 9, 0, 0, 0, time.Local)
	seedDay(t, store, day, 2, 0)

	first, err := service.Generate(day)
	require.NoError(t, err)

	_, err = service.Generate(day)
	require.Error(t, err)
	assert.True(t, errors.IsConflict(err))

	got, err := store.GetDailyReport("2026-08-30")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID, "the first report survives a repeated generation attempt")
}

func TestGenerateEmptyDay(t *testing.T) {
	service, _ := setupService(t)
	day := time.Date(2026, 1, 1, 0, 0, 0, 0, time.Local)

	generated, err := service.Generate(day)
	require.NoError(t, err)
	assert.Zero(t, generated.TotalUploads)
	assert.Zero(t, generated.TotalDuplicates)
}

func TestGenerateNotifiesAdmins(t *testing.T) {
	service, store := setupService(t)

	school := datastore.School{Name: "Test School"}
	require.NoError(t, store.SaveSchool(&school))
	admin := datastore.User{SchoolID: school.ID, Email: "admin@example.com", Role: datastore.RoleAdmin}
	require.NoError(t, store.SaveUser(&admin))
	uploader := datastore.User{SchoolID: school.ID, Email: "up@example.com", Role: datastore.RoleUploader}
	require.NoError(t, store.SaveUser(&uploader))

	_, err := service.Generate(time.Date(2026, 8, 30, 12, 0, 0, 0, time.Local))
	require.NoError(t, err)

	adminNotes, err := store.GetNotifications(admin.ID)
	require.NoError(t, err)
	require.Len(t, adminNotes, 1)
	assert.Equal(t, datastore.TypeDailyReport, adminNotes[0].Type)

	uploaderNotes, err := store.GetNotifications(uploader.ID)
	require.NoError(t, err)
	assert.Empty(t, uploaderNotes, "report notifications go to admins only")
}
