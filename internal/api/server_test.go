package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classcount/classcount-go/internal/conf"
	"github.com/classcount/classcount-go/internal/datastore"
	"github.com/classcount/classcount-go/internal/detector"
	"github.com/classcount/classcount-go/internal/imagestore"
	"github.com/classcount/classcount-go/internal/ingest"
	"github.com/classcount/classcount-go/internal/report"
)

type fixedEngine struct{ count int }

func (e *fixedEngine) Detect(ctx context.Context, img image.Image) (*detector.Result, error) {
	result := &detector.Result{Labels: []string{"person"}}
	for i := 0; i < e.count; i++ {
		result.Detections = append(result.Detections, detector.Detection{Label: "person", Confidence: 0.9})
	}
	return result, nil
}

func newTestServer(t *testing.T) (*Server, datastore.Interface) {
	t.Helper()
	settings := &conf.Settings{}
	settings.Detector.TargetLabel = "person"
	settings.Detector.MinConfidence = 0.5
	settings.Storage.ImagePath = t.TempDir()
	settings.Storage.ReportPath = t.TempDir()
	settings.WebServer.Port = "8080"
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = filepath.Join(t.TempDir(), "api.db")

	store := datastore.New(settings)
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })

	images := imagestore.New(settings.Storage.ImagePath)
	pipeline := ingest.New(settings, store, images, &fixedEngine{count: 3}, nil)
	reports := report.NewService(settings, store)

	return NewServer(settings, store, pipeline, reports, nil), store
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echoHeaderContentType, "application/json")
	rec := httptest.NewRecorder()
	s.Echo.ServeHTTP(rec, req)
	return rec
}

const echoHeaderContentType = "Content-Type"

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func registerTestUser(t *testing.T, s *Server, store datastore.Interface) datastore.User {
	t.Helper()
	school := datastore.School{Name: "API School"}
	require.NoError(t, store.SaveSchool(&school))

	rec := doJSON(t, s, http.MethodPost, "/api/v1/auth/register", map[string]any{
		"first_name": "Ada",
		"last_name":  "Teacher",
		"email":      "ada@example.com",
		"password":   "correct horse battery",
		"school_id":  school.ID,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	user, err := store.GetUserByEmail("ada@example.com")
	require.NoError(t, err)
	return user
}

func TestRegisterAndLogin(t *testing.T) {
	s, store := newTestServer(t)
	registerTestUser(t, s, store)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email": "ada@example.com", "password": "correct horse battery",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeEnvelope(t, rec).Success)

	rec = doJSON(t, s, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email": "ada@example.com", "password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	s, store := newTestServer(t)
	user := registerTestUser(t, s, store)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/auth/register", map[string]any{
		"email": "ada@example.com", "password": "another password", "school_id": user.SchoolID,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRegisterRejectsShortPassword(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s, http.MethodPost, "/api/v1/auth/register", map[string]any{
		"email": "short@example.com", "password": "short",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func uploadImage(t *testing.T, s *Server, userID uint, attendance string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("image", "class.png")
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, writer.WriteField("user_id", strconv.FormatUint(uint64(userID), 10)))
	require.NoError(t, writer.WriteField("attendance", attendance))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/images", &buf)
	req.Header.Set(echoHeaderContentType, writer.FormDataContentType())
	rec := httptest.NewRecorder()
	s.Echo.ServeHTTP(rec, req)
	return rec
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			img.Set(x, y, color.RGBA{R: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestUploadImage(t *testing.T) {
	s, store := newTestServer(t)
	user := registerTestUser(t, s, store)

	rec := uploadImage(t, s, user.ID, "25", testPNG(t))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	env := decodeEnvelope(t, rec)
	assert.True(t, env.Success)

	uploads, err := store.GetAllImageUploads()
	require.NoError(t, err)
	require.Len(t, uploads, 1)
	require.NotNil(t, uploads[0].HeadCount)
	assert.Equal(t, 3, *uploads[0].HeadCount)
}

func TestUploadImageDuplicateCreatesAlert(t *testing.T) {
	s, store := newTestServer(t)
	user := registerTestUser(t, s, store)
	data := testPNG(t)

	require.Equal(t, http.StatusCreated, uploadImage(t, s, user.ID, "25", data).Code)
	require.Equal(t, http.StatusCreated, uploadImage(t, s, user.ID, "25", data).Code)

	notifications, err := store.GetNotifications(user.ID)
	require.NoError(t, err)
	require.Len(t, notifications, 1)
	assert.Equal(t, datastore.TypeDuplicateAlert, notifications[0].Type)
}

func TestUploadImageRejectsNegativeAttendance(t *testing.T) {
	s, store := newTestServer(t)
	user := registerTestUser(t, s, store)

	rec := uploadImage(t, s, user.ID, "-5", testPNG(t))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerateReportConflict(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/reports", map[string]string{"date": "2026-08-30"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, s, http.MethodPost, "/api/v1/reports", map[string]string{"date": "2026-08-30"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestUpdateSchool(t *testing.T) {
	s, store := newTestServer(t)

	school := datastore.School{Name: "Old Name", Address: "Old Street 1"}
	require.NoError(t, store.SaveSchool(&school))

	rec := doJSON(t, s, http.MethodPut, "/api/v1/schools/"+strconv.FormatUint(uint64(school.ID), 10), map[string]string{
		"Name": "New Name", "Address": "New Street 2",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	updated, err := store.GetSchool(school.ID)
	require.NoError(t, err)
	assert.Equal(t, "New Name", updated.Name)
	assert.Equal(t, "New Street 2", updated.Address)

	rec = doJSON(t, s, http.MethodPut, "/api/v1/schools/99999", map[string]string{"Name": "X"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetNotificationByID(t *testing.T) {
	s, store := newTestServer(t)
	user := registerTestUser(t, s, store)

	notification := datastore.Notification{
		UserID: user.ID, Type: datastore.TypeDuplicateAlert, Message: "duplicate detected",
	}
	require.NoError(t, store.SaveNotification(&notification))

	rec := doJSON(t, s, http.MethodGet, "/api/v1/notifications/"+strconv.FormatUint(uint64(notification.ID), 10), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.True(t, env.Success)

	rec = doJSON(t, s, http.MethodGet, "/api/v1/notifications/99999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetReportByID(t *testing.T) {
	s, store := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/reports", map[string]string{"date": "2026-08-30"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	reports, err := store.GetAllDailyReports()
	require.NoError(t, err)
	require.Len(t, reports, 1)

	rec = doJSON(t, s, http.MethodGet, "/api/v1/reports/"+strconv.FormatUint(uint64(reports[0].ID), 10), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeEnvelope(t, rec).Success)

	rec = doJSON(t, s, http.MethodGet, "/api/v1/reports/99999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetMissingResource(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/api/v1/images/12345", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
