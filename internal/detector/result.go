package detector

import (
	"time"

	"github.com/classcount/classcount-go/internal/errors"
)

// BoundingBox holds normalized [0,1] box coordinates for one detection.
type BoundingBox struct {
	YMin float32 `json:"ymin"`
	XMin float32 `json:"xmin"`
	YMax float32 `json:"ymax"`
	XMax float32 `json:"xmax"`
}

// Detection is a single labeled bounding box from one inference call.
type Detection struct {
	Label      string      `json:"label"`
	Confidence float32     `json:"confidence"`
	Box        BoundingBox `json:"box"`
}

// Result is the raw output of one inference call.
type Result struct {
	Detections  []Detection
	Labels      []string // model label vocabulary at inference time
	ElapsedTime time.Duration
}

// CountLabel returns the number of detections whose label equals target and
// whose confidence is at least minConfidence. Zero matches is a valid result.
// A target absent from the model's vocabulary is a configuration mismatch and
// returns an error instead of a silent zero.
func (r *Result) CountLabel(target string, minConfidence float64) (int, error) {
	found := false
	for _, label := range r.Labels {
		if label == target {
			found = true
			break
		}
	}
	if !found {
		return 0, errors.Newf("label %q is not part of the model vocabulary (%d labels)", target, len(r.Labels)).
			Component("detector").
			Category(errors.CategoryLabelLoad).
			Context("target_label", target).
			Build()
	}

	count := 0
	for i := range r.Detections {
		if r.Detections[i].Label == target && float64(r.Detections[i].Confidence) >= minConfidence {
			count++
		}
	}
	return count, nil
}
