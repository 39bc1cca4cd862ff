// Package artifact materializes the results of a run: the output directory,
// the label file, the annotated container and the optional plot and marker
// tables.
package artifact

import (
	"errors"
	"fmt"
	"os"

	"secuer/internal/domain"
	"secuer/internal/logging"
)

// PrepareOutput makes sure dir can receive artifacts. It is called before any
// data is loaded: a regular file in the way is a configuration error, an
// existing directory is reused with a warning and a missing one is created.
func PrepareOutput(dir string, log *logging.Logger) error {
	if dir == "" {
		return fmt.Errorf("%w: output directory is empty", domain.ErrConfiguration)
	}
	info, err := os.Stat(dir)
	switch {
	case err == nil && !info.IsDir():
		return fmt.Errorf("%w: cannot create a dir because %s exists as a file", domain.ErrConfiguration, dir)
	case err == nil:
		log.Warnf("output dir %s exists, writing results into the existing dir", dir)
		return nil
	case errors.Is(err, os.ErrNotExist):
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: create output dir: %v", domain.ErrConfiguration, err)
		}
		return nil
	default:
		return fmt.Errorf("%w: stat output dir: %v", domain.ErrConfiguration, err)
	}
}
