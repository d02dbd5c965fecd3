// Package ingest implements the image ingestion and analysis pipeline: the
// single orchestration path that takes one uploaded classroom image through
// fingerprinting, duplicate classification, person detection, persistence and
// duplicate-alert creation.
package ingest

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/classcount/classcount-go/internal/conf"
	"github.com/classcount/classcount-go/internal/datastore"
	"github.com/classcount/classcount-go/internal/detector"
	"github.com/classcount/classcount-go/internal/errors"
	"github.com/classcount/classcount-go/internal/fingerprint"
	"github.com/classcount/classcount-go/internal/logging"
	"github.com/classcount/classcount-go/internal/observability"
)

// Engine is the narrow detection capability the pipeline depends on. The
// production implementation is *detector.Detector; tests substitute a stub.
type Engine interface {
	Detect(ctx context.Context, img image.Image) (*detector.Result, error)
}

// ImageStore persists raw upload bytes and returns a stable reference.
type ImageStore interface {
	Save(data []byte, originalFilename string) (string, error)
}

// Pipeline orchestrates one upload from raw bytes to a finalized record.
type Pipeline struct {
	settings *conf.Settings
	store    datastore.Interface
	images   ImageStore
	engine   Engine
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// New creates an ingestion pipeline. metrics may be nil when metrics are not
// collected (one-shot CLI analysis).
func New(settings *conf.Settings, store datastore.Interface, images ImageStore, engine Engine, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		settings: settings,
		store:    store,
		images:   images,
		engine:   engine,
		metrics:  metrics,
		logger:   logging.ForService("ingest"),
	}
}

// Request carries one upload into the pipeline.
type Request struct {
	ImageData  []byte
	Filename   string
	UserID     uint
	Attendance int
}

// Status classifies an ingestion outcome.
type Status string

const (
	// StatusComplete means every derived field was computed.
	StatusComplete Status = "complete"
	// StatusPartial means the record persisted but one or more derived
	// fields could not be computed.
	StatusPartial Status = "partial"
)

// FieldFailure names a derived field that could not be computed and why.
type FieldFailure struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// Outcome is the result of one ingestion: the finalized record plus a
// full/partial success indicator.
type Outcome struct {
	Upload  datastore.ImageUpload `json:"upload"`
	Status  Status                `json:"status"`
	Missing []FieldFailure        `json:"missing,omitempty"`
}

// Ingest runs the pipeline for one upload.
//
// Hard failures (invalid input, storage write, record creation) abort with
// nothing persisted. Once the record exists, failures in derived steps
// (fingerprinting, inference) degrade to a partial-success outcome: the
// record keeps nil in the affected field and the caller is told which fields
// are missing. Duplicate classification always runs before and independently
// of inference.
func (p *Pipeline) Ingest(ctx context.Context, req *Request) (*Outcome, error) {
	if err := validateRequest(req); err != nil {
		p.countOutcome("rejected")
		return nil, err
	}

	// The caller may abort before anything is persisted.
	if err := ctx.Err(); err != nil {
		p.countOutcome("canceled")
		return nil, errors.New(err).
			Component("ingest").
			Category(errors.CategoryTimeout).
			Context("stage", "pre-persist").
			Build()
	}

	ref, err := p.images.Save(req.ImageData, req.Filename)
	if err != nil {
		p.countOutcome("storage_error")
		return nil, err
	}

	upload := datastore.ImageUpload{
		UserID:           req.UserID,
		ImagePath:        ref,
		UploadTimestamp:  time.Now(),
		OriginalFilename: req.Filename,
		Attendance:       req.Attendance,
	}
	if err := p.store.SaveImageUpload(&upload); err != nil {
		p.countOutcome("db_error")
		return nil, err
	}

	outcome := &Outcome{Status: StatusComplete}

	// Step 3-4: fingerprint, then classify against prior uploads. A failed
	// fingerprint leaves the duplicate flag unknown; dedup cannot be
	// evaluated without a hash.
	var hash *string
	var duplicate *bool
	var original *datastore.ImageUpload
	digest, err := fingerprint.Compute(req.ImageData)
	switch {
	case err != nil:
		p.logger.Warn("fingerprinting failed, duplicate status unknown",
			"upload_id", upload.ID, "error", err)
		outcome.fail("image_hash", err)
		outcome.fail("duplicate_flag", fmt.Errorf("cannot evaluate without content hash"))
	default:
		hash = &digest
		duplicate, original = p.classifyDuplicate(digest, upload.ID)
	}

	// Step 5: inference. Always attempted regardless of the duplicate flag;
	// occupancy estimation and duplicate bookkeeping are orthogonal.
	headCount := p.runInference(ctx, req.ImageData, outcome)

	// Cancellation after the record exists stops further mutation; the
	// created record stays as-is, nothing is rolled back.
	if ctxErr := ctx.Err(); ctxErr != nil {
		p.countOutcome("canceled")
		outcome.fail("analysis", ctxErr)
		outcome.Upload = upload
		return outcome, nil
	}

	if err := p.store.UpdateImageAnalysis(upload.ID, hash, duplicate, headCount); err != nil {
		p.countOutcome("db_error")
		return nil, err
	}
	upload.ImageHash = hash
	upload.DuplicateFlag = duplicate
	upload.HeadCount = headCount

	// Step 6: a confirmed duplicate raises an alert within the same run.
	// Dispatch is a separate downstream concern.
	if duplicate != nil && *duplicate {
		if p.metrics != nil {
			p.metrics.DuplicateTotal.Inc()
		}
		p.raiseDuplicateAlert(&upload, original)
	}

	p.countOutcome(string(outcome.Status))
	p.logger.Info("image ingested",
		"upload_id", upload.ID,
		"user_id", upload.UserID,
		"status", outcome.Status,
		"duplicate", duplicate != nil && *duplicate,
		"head_count", headCount)

	outcome.Upload = upload
	return outcome, nil
}

// classifyDuplicate looks for an earlier upload with the same hash. The
// lookup-then-flag sequence has no transactional guard; two concurrent
// ingests of identical bytes can both resolve to non-duplicate.
func (p *Pipeline) classifyDuplicate(digest string, uploadID uint) (*bool, *datastore.ImageUpload) {
	match, err := p.store.GetFirstImageHashMatch(digest, uploadID)
	if err != nil {
		if errors.IsNotFound(err) {
			flag := false
			return &flag, nil
		}
		// A failed lookup leaves the flag unknown rather than guessing.
		p.logger.Warn("duplicate lookup failed", "upload_id", uploadID, "error", err)
		return nil, nil
	}
	flag := true
	return &flag, &match
}

// runInference decodes the image and runs person detection, recording any
// failure on the outcome. Returns nil when the head count is unavailable.
func (p *Pipeline) runInference(ctx context.Context, data []byte, outcome *Outcome) *int {
	img, err := detector.DecodeImage(data)
	if err != nil {
		outcome.fail("head_count", err)
		return nil
	}

	start := time.Now()
	result, err := p.engine.Detect(ctx, img)
	if err != nil {
		p.logger.Warn("inference failed, head count unavailable", "error", err)
		outcome.fail("head_count", err)
		return nil
	}
	if p.metrics != nil {
		p.metrics.InferenceDuration.Observe(time.Since(start).Seconds())
	}

	count, err := result.CountLabel(p.settings.Detector.TargetLabel, p.settings.Detector.MinConfidence)
	if err != nil {
		// Target label missing from the model vocabulary is a configuration
		// mismatch, not a zero; surface it instead of recording 0.
		p.logger.Error("target label missing from model vocabulary",
			"target_label", p.settings.Detector.TargetLabel, "error", err)
		outcome.fail("head_count", err)
		return nil
	}

	if p.metrics != nil {
		p.metrics.HeadCountGauge.Set(float64(count))
	}
	return &count
}

// raiseDuplicateAlert creates the duplicate-alert notification row. Alert
// creation failures are logged, not fatal: the upload record is already
// finalized.
func (p *Pipeline) raiseDuplicateAlert(upload, original *datastore.ImageUpload) {
	message := fmt.Sprintf("Duplicate image detected: %q matches an earlier upload", upload.OriginalFilename)
	if original != nil && upload.ImageHash != nil {
		matches, err := p.store.CountImageHashMatches(*upload.ImageHash, upload.ID)
		if err != nil {
			p.logger.Warn("failed to count hash matches for alert", "upload_id", upload.ID, "error", err)
			matches = 1
		}
		message = fmt.Sprintf("Duplicate image detected: %q matches %d earlier upload(s), first %q from %s",
			upload.OriginalFilename, matches, original.OriginalFilename,
			original.UploadTimestamp.Format("2006-01-02 15:04:05"))
	}

	notification := datastore.Notification{
		ImageUploadID: &upload.ID,
		UserID:        upload.UserID,
		Type:          datastore.TypeDuplicateAlert,
		Message:       message,
	}
	if err := p.store.SaveNotification(&notification); err != nil {
		p.logger.Error("failed to create duplicate alert", "upload_id", upload.ID, "error", err)
	}
}

func (p *Pipeline) countOutcome(outcome string) {
	if p.metrics != nil {
		p.metrics.IngestTotal.WithLabelValues(outcome).Inc()
	}
}

func (o *Outcome) fail(field string, err error) {
	o.Status = StatusPartial
	o.Missing = append(o.Missing, FieldFailure{Field: field, Reason: err.Error()})
}

func validateRequest(req *Request) error {
	if req == nil || len(req.ImageData) == 0 {
		return errors.Newf("image data is required").
			Component("ingest").
			Category(errors.CategoryValidation).
			Build()
	}
	if req.Filename == "" {
		return errors.Newf("filename is required").
			Component("ingest").
			Category(errors.CategoryValidation).
			Build()
	}
	if req.UserID == 0 {
		return errors.Newf("owner user is required").
			Component("ingest").
			Category(errors.CategoryValidation).
			Build()
	}
	if req.Attendance < 0 {
		return errors.Newf("attendance must be a non-negative integer, got %d", req.Attendance).
			Component("ingest").
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}
