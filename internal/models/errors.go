package models

import "errors"

// ErrNotFound is the shared "no such record" sentinel. The resolution
// path maps it to LevelNone; everything else surfaces it as a lookup
// failure.
var ErrNotFound = errors.New("record not found")
