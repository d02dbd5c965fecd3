package detector

import (
	"bufio"
	"os"
	"strings"

	"github.com/classcount/classcount-go/internal/errors"
)

// loadLabels reads the label vocabulary file, one label per line. Blank lines
// are skipped; "???" placeholder entries are kept so class indexes stay
// aligned with the model output.
func (d *Detector) loadLabels() error {
	file, err := os.Open(d.Settings.Detector.LabelPath)
	if err != nil {
		return errors.New(err).
			Component("detector").
			Category(errors.CategoryLabelLoad).
			Context("label_path", d.Settings.Detector.LabelPath).
			Build()
	}
	defer func() {
		if cerr := file.Close(); cerr != nil {
			d.logger.Warn("Failed to close label file", "path", d.Settings.Detector.LabelPath, "error", cerr)
		}
	}()

	d.labels = d.labels[:0]
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			d.labels = append(d.labels, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.New(err).
			Component("detector").
			Category(errors.CategoryLabelLoad).
			Context("label_path", d.Settings.Detector.LabelPath).
			Build()
	}
	if len(d.labels) == 0 {
		return errors.Newf("label file is empty: %s", d.Settings.Detector.LabelPath).
			Component("detector").
			Category(errors.CategoryLabelLoad).
			Build()
	}

	d.labelSet = make(map[string]struct{}, len(d.labels))
	for _, label := range d.labels {
		d.labelSet[label] = struct{}{}
	}
	return nil
}
