// Package domain holds errors shared by every domain package.
package domain

import "github.com/go-faster/errors"

// ErrStoreUnavailable is returned when the durable store cannot be reached.
// Operations failing with it left no partial state behind and may be retried.
var ErrStoreUnavailable = errors.New("store unavailable")
