package store

import "errors"

// ErrNoDSN is returned by Open when no connection string is configured.
var ErrNoDSN = errors.New("DB_DSN is not set")
