package sandbox

import "errors"

var (
	errNotInitialized = errors.New("sandbox worker not initialized")
	errNoAdapter      = errors.New("language adapter not found")
)
