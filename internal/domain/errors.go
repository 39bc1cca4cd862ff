package domain

import "errors"

// Error taxonomy shared by every stage. Stages wrap these with context using
// fmt.Errorf("...: %w", ...); the CLI maps all of them to exit status 1.
var (
	// ErrConfiguration covers missing or invalid options, a missing input
	// file and an output path that already exists as a regular file.
	ErrConfiguration = errors.New("configuration error")

	// ErrUnsupportedFormat is returned by the dataset loader for extensions
	// it cannot read.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrPreprocessing is fatal for every stage except variable-feature
	// selection.
	ErrPreprocessing = errors.New("preprocessing error")

	// ErrClustering wraps failures of the clustering primitive.
	ErrClustering = errors.New("clustering error")

	// ErrEnsembleExhausted is returned when fewer than two ensemble runs
	// succeed.
	ErrEnsembleExhausted = errors.New("ensemble exhausted")
)
