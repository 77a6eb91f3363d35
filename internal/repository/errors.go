package repository

import "permission-service/internal/models"

// ErrNotFound aliases the shared sentinel so callers can match it
// without importing this package.
var ErrNotFound = models.ErrNotFound
