package conf

import (
	"github.com/classcount/classcount-go/internal/errors"
)

// ValidateSettings checks the loaded settings for configuration mistakes that
// would only surface later at runtime.
func ValidateSettings(settings *Settings) error {
	if settings.Detector.ModelPath == "" {
		return errors.Newf("detector.modelpath must be set").
			Component("conf").
			Category(errors.CategoryValidation).
			Build()
	}
	if settings.Detector.LabelPath == "" {
		return errors.Newf("detector.labelpath must be set").
			Component("conf").
			Category(errors.CategoryValidation).
			Build()
	}
	if settings.Detector.TargetLabel == "" {
		return errors.Newf("detector.targetlabel must be set").
			Component("conf").
			Category(errors.CategoryValidation).
			Build()
	}
	if settings.Detector.MinConfidence < 0 || settings.Detector.MinConfidence > 1 {
		return errors.Newf("detector.minconfidence must be between 0.0 and 1.0, got %f",
			settings.Detector.MinConfidence).
			Component("conf").
			Category(errors.CategoryValidation).
			Build()
	}
	if settings.Detector.InferenceTimeout <= 0 {
		return errors.Newf("detector.inferencetimeout must be positive").
			Component("conf").
			Category(errors.CategoryValidation).
			Build()
	}
	if !settings.Output.SQLite.Enabled && !settings.Output.MySQL.Enabled {
		return errors.Newf("either output.sqlite or output.mysql must be enabled").
			Component("conf").
			Category(errors.CategoryValidation).
			Build()
	}
	if settings.Output.SQLite.Enabled && settings.Output.MySQL.Enabled {
		return errors.Newf("output.sqlite and output.mysql are mutually exclusive").
			Component("conf").
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}
