package common

import "errors"

// Error kinds shared by the parser, the hash checks and the mapper.
// Callers test them with errors.Is.
var (
	// ErrInvalidMetainfo reports missing or inconsistent required fields.
	ErrInvalidMetainfo = errors.New(`invalid metainfo`)

	// ErrIntegrity reports a hash or merkle root mismatch, including
	// v1/v2 disagreement on hybrid torrents.
	ErrIntegrity = errors.New(`integrity check failed`)

	// ErrSizeMismatch reports a remap with a different total size.
	ErrSizeMismatch = errors.New(`size mismatch`)

	// ErrPrecondition reports an out-of-range argument. It is a caller bug
	// and retrying cannot fix it.
	ErrPrecondition = errors.New(`precondition violated`)
)
