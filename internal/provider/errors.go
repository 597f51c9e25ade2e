package provider

import "errors"

// ErrUnsupported is returned by Capabilities.Delete when the wrapped
// provider does not implement Deleter.
var ErrUnsupported = errors.New("provider: capability not supported")
