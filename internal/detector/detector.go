// detector.go person detection model specific code
package detector

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"runtime"
	"time"

	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder

	tflite "github.com/tphakala/go-tflite"
	"github.com/tphakala/go-tflite/delegates/xnnpack"
	"golang.org/x/sync/semaphore"

	"github.com/classcount/classcount-go/internal/conf"
	"github.com/classcount/classcount-go/internal/errors"
	"github.com/classcount/classcount-go/internal/logging"
)

// Detector owns the TFLite person-detection interpreter. The interpreter is
// not safe for concurrent invocation, so all access to it is serialized
// through a weighted semaphore; waiting callers honor their context deadline.
type Detector struct {
	Settings *conf.Settings

	interpreter *tflite.Interpreter
	labels      []string
	labelSet    map[string]struct{}

	inputWidth  int
	inputHeight int
	quantized   bool

	sem    *semaphore.Weighted
	logger *slog.Logger
}

// New loads the detection model and labels from the configured paths and
// returns a ready-to-use Detector.
func New(settings *conf.Settings) (*Detector, error) {
	start := time.Now()

	d := &Detector{
		Settings: settings,
		sem:      semaphore.NewWeighted(1),
		logger:   logging.ForService("detector"),
	}

	modelData, err := os.ReadFile(settings.Detector.ModelPath)
	if err != nil {
		return nil, errors.New(err).
			Component("detector").
			Category(errors.CategoryModelLoad).
			ModelContext(settings.Detector.ModelPath, settings.Detector.LabelPath).
			Timing("model-load", time.Since(start)).
			Build()
	}

	model := tflite.NewModel(modelData)
	if model == nil {
		return nil, errors.Newf("cannot load TensorFlow Lite model").
			Component("detector").
			Category(errors.CategoryModelLoad).
			ModelContext(settings.Detector.ModelPath, "").
			Context("model_size_mb", len(modelData)/1024/1024).
			Build()
	}

	threads := determineThreadCount(settings.Detector.Threads)

	options := tflite.NewInterpreterOptions()
	if settings.Detector.UseXNNPACK {
		delegate := xnnpack.New(xnnpack.DelegateOptions{NumThreads: int32(max(1, threads-1))})
		if delegate == nil {
			d.logger.Warn("Failed to create XNNPACK delegate, falling back to default CPU")
			options.SetNumThread(threads)
		} else {
			options.AddDelegate(delegate)
			options.SetNumThread(1)
		}
	} else {
		options.SetNumThread(threads)
	}

	options.SetErrorReporter(func(msg string, userData any) {
		logging.ForService("detector").Error("TFLite error", "message", msg)
	}, nil)

	d.interpreter = tflite.NewInterpreter(model, options)
	if d.interpreter == nil {
		return nil, errors.Newf("cannot create interpreter").
			Component("detector").
			Category(errors.CategoryModelInit).
			ModelContext(settings.Detector.ModelPath, "").
			Build()
	}
	if status := d.interpreter.AllocateTensors(); status != tflite.OK {
		return nil, errors.Newf("tensor allocation failed: %v", status).
			Component("detector").
			Category(errors.CategoryModelInit).
			ModelContext(settings.Detector.ModelPath, "").
			Build()
	}

	inputTensor := d.interpreter.GetInputTensor(0)
	if inputTensor == nil {
		return nil, errors.Newf("cannot get input tensor from model").
			Component("detector").
			Category(errors.CategoryModelInit).
			Build()
	}
	// Input shape is [1, height, width, channels]
	d.inputHeight = inputTensor.Dim(1)
	d.inputWidth = inputTensor.Dim(2)
	d.quantized = inputTensor.Type() == tflite.UInt8

	if err := d.loadLabels(); err != nil {
		return nil, err
	}

	// Model data is no longer needed, TFLite keeps its own internal copy.
	runtime.GC()

	d.logger.Info("detection model initialized",
		"model", settings.Detector.ModelPath,
		"labels", len(d.labels),
		"input_width", d.inputWidth,
		"input_height", d.inputHeight,
		"quantized", d.quantized,
		"threads", threads)

	return d, nil
}

// Labels returns the model's label vocabulary.
func (d *Detector) Labels() []string {
	out := make([]string, len(d.labels))
	copy(out, d.labels)
	return out
}

// HasLabel reports whether label is part of the model's vocabulary.
func (d *Detector) HasLabel(label string) bool {
	_, ok := d.labelSet[label]
	return ok
}

// Detect runs person detection on a decoded image. The call is bounded by the
// context deadline; if none is set, the configured inference timeout applies.
// A failed inference leaves the shared interpreter usable for later calls.
func (d *Detector) Detect(ctx context.Context, img image.Image) (*Result, error) {
	if img == nil {
		return nil, errors.Newf("nil image passed to Detect").
			Component("detector").
			Category(errors.CategoryValidation).
			Build()
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Settings.Detector.InferenceTimeout)
		defer cancel()
	}

	// Serialize interpreter access. Waiting respects the caller's deadline so
	// a busy interpreter cannot stall ingestion indefinitely.
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return nil, errors.New(err).
			Component("detector").
			Category(errors.CategoryTimeout).
			Context("stage", "acquire").
			Build()
	}
	defer d.sem.Release(1)

	start := time.Now()

	if err := d.fillInputTensor(img); err != nil {
		return nil, err
	}

	if status := d.interpreter.Invoke(); status != tflite.OK {
		return nil, errors.Newf("tensor invoke failed: %v", status).
			Component("detector").
			Category(errors.CategoryInference).
			Timing("invoke", time.Since(start)).
			Build()
	}

	if err := ctx.Err(); err != nil {
		return nil, errors.New(err).
			Component("detector").
			Category(errors.CategoryTimeout).
			Timing("invoke", time.Since(start)).
			Build()
	}

	result, err := d.readDetections()
	if err != nil {
		return nil, err
	}
	result.ElapsedTime = time.Since(start)

	d.logger.Debug("inference completed",
		"detections", len(result.Detections),
		"elapsed_ms", result.ElapsedTime.Milliseconds())

	return result, nil
}

// readDetections converts the SSD-style output tensors (locations, classes,
// scores, count) into a Result.
func (d *Detector) readDetections() (*Result, error) {
	locations := d.interpreter.GetOutputTensor(0)
	classes := d.interpreter.GetOutputTensor(1)
	scores := d.interpreter.GetOutputTensor(2)
	count := d.interpreter.GetOutputTensor(3)
	if locations == nil || classes == nil || scores == nil || count == nil {
		return nil, errors.Newf("model output tensors missing, expected SSD postprocess outputs").
			Component("detector").
			Category(errors.CategoryInference).
			Build()
	}

	boxData := locations.Float32s()
	classData := classes.Float32s()
	scoreData := scores.Float32s()
	countData := count.Float32s()
	if len(countData) == 0 {
		return nil, errors.Newf("model returned empty detection count tensor").
			Component("detector").
			Category(errors.CategoryInference).
			Build()
	}

	numDetections := int(countData[0])
	if numDetections > len(scoreData) {
		numDetections = len(scoreData)
	}

	result := &Result{Labels: d.labels}
	for i := 0; i < numDetections; i++ {
		classIndex := int(classData[i])
		if classIndex < 0 || classIndex >= len(d.labels) {
			continue
		}
		det := Detection{
			Label:      d.labels[classIndex],
			Confidence: scoreData[i],
		}
		if len(boxData) >= (i+1)*4 {
			det.Box = BoundingBox{
				YMin: boxData[i*4],
				XMin: boxData[i*4+1],
				YMax: boxData[i*4+2],
				XMax: boxData[i*4+3],
			}
		}
		result.Detections = append(result.Detections, det)
	}
	return result, nil
}

// DecodeImage decodes raw upload bytes into an image for inference.
func DecodeImage(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.New(fmt.Errorf("decoding image: %w", err)).
			Component("detector").
			Category(errors.CategoryImageDecode).
			Context("size_bytes", len(data)).
			Build()
	}
	return img, nil
}
