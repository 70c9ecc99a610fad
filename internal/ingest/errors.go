package ingest

import "errors"

// Sentinel errors of the ingestion pipeline.
var (
	// ErrUnreachable means the source could not be retrieved because of a
	// network, DNS or server failure. Transient; retried with backoff.
	ErrUnreachable = errors.New("source unreachable")

	// ErrUnauthorized means the credential was rejected by the source.
	// Not retried.
	ErrUnauthorized = errors.New("credential rejected")

	// ErrCorrupt means the downloaded bytes fail the container sanity check.
	// Not retried.
	ErrCorrupt = errors.New("downloaded media is corrupt")

	// ErrDecode means the source media cannot be parsed. Fatal for the
	// source, no retry.
	ErrDecode = errors.New("media decode failed")

	// ErrLeaseHeld means another worker owns the processing lease for the
	// source. The source is skipped this cycle, not failed.
	ErrLeaseHeld = errors.New("source lease held by another worker")
)
