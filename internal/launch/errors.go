package launch

import "errors"

var (
	// ErrConfig marks problems with the inputs: endpoint, positional
	// arguments, or profile values.
	ErrConfig = errors.New("invalid configuration")

	// ErrLaunch marks failures to start the server: missing program,
	// unwritable log, or a backend error.
	ErrLaunch = errors.New("launch failed")
)
