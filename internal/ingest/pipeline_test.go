package ingest

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classcount/classcount-go/internal/conf"
	"github.com/classcount/classcount-go/internal/datastore"
	"github.com/classcount/classcount-go/internal/detector"
	"github.com/classcount/classcount-go/internal/errors"
)

// stubEngine returns a canned detection result or error.
type stubEngine struct {
	result *detector.Result
	err    error
	calls  int
}

func (s *stubEngine) Detect(ctx context.Context, img image.Image) (*detector.Result, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

// memoryStore keeps stored blobs in memory.
type memoryStore struct {
	refs  int
	saved map[string][]byte
}

func (m *memoryStore) Save(data []byte, originalFilename string) (string, error) {
	if m.saved == nil {
		m.saved = make(map[string][]byte)
	}
	m.refs++
	ref := fmt.Sprintf("mem/%d%s", m.refs, filepath.Ext(originalFilename))
	m.saved[ref] = data
	return ref, nil
}

func personsResult(confidences ...float32) *detector.Result {
	r := &detector.Result{Labels: []string{"person", "chair"}}
	for _, c := range confidences {
		r.Detections = append(r.Detections, detector.Detection{Label: "person", Confidence: c})
	}
	return r
}

func testSettings(t *testing.T) *conf.Settings {
	t.Helper()
	settings := &conf.Settings{}
	settings.Detector.TargetLabel = "person"
	settings.Detector.MinConfidence = 0.5
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = filepath.Join(t.TempDir(), "ingest.db")
	return settings
}

func openStore(t *testing.T, settings *conf.Settings) datastore.Interface {
	t.Helper()
	store := datastore.New(settings)
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedUploader(t *testing.T, store datastore.Interface) datastore.User {
	t.Helper()
	school := datastore.School{Name: "Test School"}
	require.NoError(t, store.SaveSchool(&school))
	user := datastore.User{SchoolID: school.ID, Email: "teacher@example.com", Role: datastore.RoleUploader}
	require.NoError(t, store.SaveUser(&user))
	return user
}

func pngBytes(t *testing.T, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestIngestCompleteOutcome(t *testing.T) {
	settings := testSettings(t)
	store := openStore(t, settings)
	user := seedUploader(t, store)
	engine := &stubEngine{result: personsResult(0.9, 0.8, 0.3)}
	pipeline := New(settings, store, &memoryStore{}, engine, nil)

	outcome, err := pipeline.Ingest(context.Background(), &Request{
		ImageData:  pngBytes(t, color.RGBA{R: 10, A: 255}),
		Filename:   "class.png",
		UserID:     user.ID,
		Attendance: 25,
	})
	require.NoError(t, err)

	assert.Equal(t, StatusComplete, outcome.Status)
	assert.Empty(t, outcome.Missing)
	require.NotNil(t, outcome.Upload.ImageHash)
	require.NotNil(t, outcome.Upload.DuplicateFlag)
	assert.False(t, *outcome.Upload.DuplicateFlag, "first upload of its content is not a duplicate")
	require.NotNil(t, outcome.Upload.HeadCount)
	assert.Equal(t, 2, *outcome.Upload.HeadCount)

	persisted, err := store.GetImageUpload(outcome.Upload.ID)
	require.NoError(t, err)
	assert.Equal(t, outcome.Upload.ImageHash, persisted.ImageHash)
	assert.Equal(t, 25, persisted.Attendance)
}

func TestIngestDetectsDuplicate(t *testing.T) {
	settings := testSettings(t)
	store := openStore(t, settings)
	user := seedUploader(t, store)
	engine := &stubEngine{result: personsResult(0.9)}
	pipeline := New(settings, store, &memoryStore{}, engine, nil)

	data := pngBytes(t, color.RGBA{G: 42, A: 255})

	first, err := pipeline.Ingest(context.Background(), &Request{
		ImageData: data, Filename: "morning.png", UserID: user.ID, Attendance: 20,
	})
	require.NoError(t, err)
	assert.False(t, *first.Upload.DuplicateFlag)

	second, err := pipeline.Ingest(context.Background(), &Request{
		ImageData: data, Filename: "resubmitted.png", UserID: user.ID, Attendance: 20,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, second.Status)
	require.NotNil(t, second.Upload.DuplicateFlag)
	assert.True(t, *second.Upload.DuplicateFlag)
	assert.Equal(t, first.Upload.ImageHash, second.Upload.ImageHash)

	// The duplicate raises an alert within the same run.
	alerts, err := store.GetNotifications(user.ID)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, datastore.TypeDuplicateAlert, alerts[0].Type)
	require.NotNil(t, alerts[0].ImageUploadID)
	assert.Equal(t, second.Upload.ID, *alerts[0].ImageUploadID)
	assert.Contains(t, alerts[0].Message, "morning.png", "the alert names the original upload")
	assert.Contains(t, alerts[0].Message, "1 earlier upload", "the alert carries the match count")
	assert.Nil(t, alerts[0].SentAt, "creation and dispatch are separate concerns")

	third, err := pipeline.Ingest(context.Background(), &Request{
		ImageData: data, Filename: "resubmitted-again.png", UserID: user.ID, Attendance: 20,
	})
	require.NoError(t, err)
	assert.True(t, *third.Upload.DuplicateFlag)

	alerts, err = store.GetNotifications(user.ID)
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.Contains(t, alerts[0].Message, "2 earlier upload", "the count grows with repeated duplicates")
	assert.Contains(t, alerts[0].Message, "morning.png", "the earliest upload stays the named original")
}

func TestIngestInferenceFailureIsPartial(t *testing.T) {
	settings := testSettings(t)
	store := openStore(t, settings)
	user := seedUploader(t, store)
	engine := &stubEngine{err: errors.Newf("interpreter invoke failed").
		Component("detector").Category(errors.CategoryInference).Build()}
	pipeline := New(settings, store, &memoryStore{}, engine, nil)

	outcome, err := pipeline.Ingest(context.Background(), &Request{
		ImageData: pngBytes(t, color.RGBA{B: 7, A: 255}),
		Filename:  "class.png", UserID: user.ID, Attendance: 30,
	})
	require.NoError(t, err, "an inference failure must not fail the ingestion")

	assert.Equal(t, StatusPartial, outcome.Status)
	require.Len(t, outcome.Missing, 1)
	assert.Equal(t, "head_count", outcome.Missing[0].Field)

	persisted, err := store.GetImageUpload(outcome.Upload.ID)
	require.NoError(t, err)
	assert.Nil(t, persisted.HeadCount)
	require.NotNil(t, persisted.DuplicateFlag, "duplicate classification is independent of inference")
	assert.False(t, *persisted.DuplicateFlag)
	require.NotNil(t, persisted.ImageHash)
}

func TestIngestUndecodableImageIsPartial(t *testing.T) {
	settings := testSettings(t)
	store := openStore(t, settings)
	user := seedUploader(t, store)
	engine := &stubEngine{result: personsResult(0.9)}
	pipeline := New(settings, store, &memoryStore{}, engine, nil)

	outcome, err := pipeline.Ingest(context.Background(), &Request{
		ImageData: []byte("not an image at all"),
		Filename:  "corrupt.png", UserID: user.ID, Attendance: 10,
	})
	require.NoError(t, err, "the record persists even when nothing can be derived")

	assert.Equal(t, StatusPartial, outcome.Status)
	fields := make(map[string]bool)
	for _, f := range outcome.Missing {
		fields[f.Field] = true
	}
	assert.True(t, fields["image_hash"])
	assert.True(t, fields["duplicate_flag"], "dedup cannot be evaluated without a hash")
	assert.True(t, fields["head_count"])
	assert.Zero(t, engine.calls, "nothing decodable reaches the engine")

	persisted, err := store.GetImageUpload(outcome.Upload.ID)
	require.NoError(t, err)
	assert.Nil(t, persisted.ImageHash)
	assert.Nil(t, persisted.DuplicateFlag)
	assert.Nil(t, persisted.HeadCount)
}

func TestIngestUnknownTargetLabelIsPartial(t *testing.T) {
	settings := testSettings(t)
	settings.Detector.TargetLabel = "giraffe"
	store := openStore(t, settings)
	user := seedUploader(t, store)
	engine := &stubEngine{result: personsResult(0.9)}
	pipeline := New(settings, store, &memoryStore{}, engine, nil)

	outcome, err := pipeline.Ingest(context.Background(), &Request{
		ImageData: pngBytes(t, color.RGBA{R: 1, A: 255}),
		Filename:  "class.png", UserID: user.ID, Attendance: 12,
	})
	require.NoError(t, err)

	assert.Equal(t, StatusPartial, outcome.Status)
	require.Len(t, outcome.Missing, 1)
	assert.Equal(t, "head_count", outcome.Missing[0].Field)

	persisted, err := store.GetImageUpload(outcome.Upload.ID)
	require.NoError(t, err)
	assert.Nil(t, persisted.HeadCount, "a vocabulary mismatch must not be recorded as zero")
}

func TestIngestValidation(t *testing.T) {
	settings := testSettings(t)
	store := openStore(t, settings)
	pipeline := New(settings, store, &memoryStore{}, &stubEngine{result: personsResult()}, nil)

	cases := []struct {
		name string
		req  *Request
	}{
		{"empty image data", &Request{Filename: "a.png", UserID: 1, Attendance: 1}},
		{"missing filename", &Request{ImageData: []byte{1}, UserID: 1, Attendance: 1}},
		{"missing user", &Request{ImageData: []byte{1}, Filename: "a.png", Attendance: 1}},
		{"negative attendance", &Request{ImageData: []byte{1}, Filename: "a.png", UserID: 1, Attendance: -3}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			outcome, err := pipeline.Ingest(context.Background(), tc.req)
			require.Error(t, err)
			assert.Nil(t, outcome)
			assert.True(t, errors.IsValidation(err))
		})
	}

	uploads, err := store.GetAllImageUploads()
	require.NoError(t, err)
	assert.Empty(t, uploads, "rejected requests persist nothing")
}

func TestIngestCanceledBeforePersist(t *testing.T) {
	settings := testSettings(t)
	store := openStore(t, settings)
	user := seedUploader(t, store)
	pipeline := New(settings, store, &memoryStore{}, &stubEngine{result: personsResult()}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome, err := pipeline.Ingest(ctx, &Request{
		ImageData: pngBytes(t, color.RGBA{R: 9, A: 255}),
		Filename:  "class.png", UserID: user.ID, Attendance: 5,
	})
	require.Error(t, err)
	assert.Nil(t, outcome)

	uploads, err := store.GetAllImageUploads()
	require.NoError(t, err)
	assert.Empty(t, uploads)
}
