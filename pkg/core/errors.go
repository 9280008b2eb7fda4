// pkg/core/errors.go
package core

import "errors"

// ErrResourceExhaustion is returned when a session cannot be populated within
// its volume, e.g. start positions could not be placed apart.
var ErrResourceExhaustion = errors.New("resource exhaustion")

// ErrConfiguration is returned for invalid tunables or unknown motion model names.
var ErrConfiguration = errors.New("configuration error")
