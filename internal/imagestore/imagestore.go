// Package imagestore persists raw upload bytes and generated artifacts on
// disk under date-partitioned paths.
package imagestore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/classcount/classcount-go/internal/errors"
)

// Store writes files below a base directory and hands out relative
// references. References are stable and safe to persist in the database.
type Store struct {
	BaseDir string
}

// New returns a Store rooted at baseDir.
func New(baseDir string) *Store {
	return &Store{BaseDir: baseDir}
}

// Save writes data under a date-partitioned, uuid-named path and returns the
// relative reference. The original filename only contributes its extension.
func (s *Store) Save(data []byte, originalFilename string) (string, error) {
	if len(data) == 0 {
		return "", errors.Newf("refusing to store empty file").
			Component("imagestore").
			Category(errors.CategoryValidation).
			Build()
	}

	now := time.Now()
	ext := strings.ToLower(filepath.Ext(originalFilename))
	ref := filepath.Join(
		now.Format("2006/01/02"),
		uuid.New().String()+ext,
	)

	target := filepath.Join(s.BaseDir, ref)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", storageError(err, target)
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return "", storageError(err, target)
	}
	return ref, nil
}

// Load reads back the bytes for a reference produced by Save.
func (s *Store) Load(ref string) ([]byte, error) {
	target, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(target) //nolint:gosec // G304: path validated by resolve
	if err != nil {
		return nil, storageError(err, target)
	}
	return data, nil
}

// Delete removes the stored file for a reference. Missing files are not an
// error; the reference may already have been cleaned up.
func (s *Store) Delete(ref string) error {
	target, err := s.resolve(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return storageError(err, target)
	}
	return nil
}

// resolve joins ref onto the base directory and rejects references that would
// escape it.
func (s *Store) resolve(ref string) (string, error) {
	cleaned := filepath.Clean(ref)
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) || filepath.IsAbs(cleaned) {
		return "", errors.Newf("invalid storage reference: %s", ref).
			Component("imagestore").
			Category(errors.CategoryValidation).
			Build()
	}
	return filepath.Join(s.BaseDir, cleaned), nil
}

func storageError(err error, path string) error {
	return errors.New(fmt.Errorf("image storage: %w", err)).
		Component("imagestore").
		Category(errors.CategoryFileIO).
		Context("path", path).
		Build()
}
