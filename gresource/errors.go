package gresource

import "errors"

// Bundle-builder errors (spec §7's "Bundle builder" taxonomy).
var (
	ErrStripPrefix             = errors.New("gresource: path escapes declared root")
	ErrUnsupportedPreprocessor = errors.New("gresource: unsupported preprocessor")
	ErrSchema                  = errors.New("gresource: invalid manifest schema")
)
