package detector

import (
	"sync"

	"github.com/classcount/classcount-go/internal/conf"
)

var (
	sharedOnce     sync.Once
	sharedInstance *Detector
	sharedErr      error
)

// GetShared returns the process-wide Detector, constructing it on first use.
// Construction happens exactly once; concurrent first callers block until it
// completes and all receive the same instance or the same initialization
// error. A failed initialization is sticky for the process lifetime, since a
// missing or malformed model file will not fix itself between requests.
func GetShared(settings *conf.Settings) (*Detector, error) {
	sharedOnce.Do(func() {
		sharedInstance, sharedErr = New(settings)
	})
	return sharedInstance, sharedErr
}
