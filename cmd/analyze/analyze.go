// Package analyze implements the analyze command: one-shot analysis of a
// single image file without touching the database.
package analyze

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/classcount/classcount-go/internal/conf"
	"github.com/classcount/classcount-go/internal/detector"
	"github.com/classcount/classcount-go/internal/fingerprint"
)

// Command creates the analyze command.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze [image file]",
		Short: "Analyze a single image file and print the head count",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalysis(cmd.Context(), settings, args[0])
		},
	}
}

func runAnalysis(ctx context.Context, settings *conf.Settings, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: user-supplied CLI argument
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	digest, err := fingerprint.Compute(data)
	if err != nil {
		return fmt.Errorf("fingerprinting %s: %w", path, err)
	}

	engine, err := detector.GetShared(settings)
	if err != nil {
		return fmt.Errorf("initializing detector: %w", err)
	}

	img, err := detector.DecodeImage(data)
	if err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}

	result, err := engine.Detect(ctx, img)
	if err != nil {
		return fmt.Errorf("running detection: %w", err)
	}
	count, err := result.CountLabel(settings.Detector.TargetLabel, settings.Detector.MinConfidence)
	if err != nil {
		return fmt.Errorf("counting detections: %w", err)
	}

	fmt.Printf("File: %s\n", path)
	fmt.Printf("SHA-256: %s\n", digest)
	fmt.Printf("Head count: %d (label %q, confidence >= %.2f)\n",
		count, settings.Detector.TargetLabel, settings.Detector.MinConfidence)
	fmt.Printf("Inference time: %s\n", result.ElapsedTime)
	return nil
}
