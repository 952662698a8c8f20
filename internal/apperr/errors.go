// Package apperr defines the engine's sentinel error kinds and their
// user-facing messages.
package apperr

import "errors"

var (
	// ErrArchiveCorrupt means the container could not be read as a zip
	// archive, or an embedded payload failed to decompress.
	ErrArchiveCorrupt = errors.New("archive corrupt")

	// ErrUnsupportedFormat means no recognized database name was found in
	// the archive, or the compressed variant was present but zstd support
	// is unavailable in this build.
	ErrUnsupportedFormat = errors.New("unsupported archive format")

	// ErrSchemaUnrecognized means the embedded database matches neither
	// the legacy nor the modern collection schema.
	ErrSchemaUnrecognized = errors.New("schema unrecognized")

	// ErrNotFound means the referenced note does not exist in the session.
	ErrNotFound = errors.New("not found")

	// ErrInvalidField means the field name is not declared by the note's
	// note type.
	ErrInvalidField = errors.New("invalid field")

	// ErrUnknownModel means the model id does not name a known note type.
	ErrUnknownModel = errors.New("unknown model")

	// ErrExportFailed means the archive could not be written back to disk.
	ErrExportFailed = errors.New("export failed")

	// ErrCancelled marks a caller-initiated abort (e.g. a dismissed save
	// dialog). It is a deliberate no-op, not an engine failure, and is
	// suppressed from error display.
	ErrCancelled = errors.New("cancelled")

	// ErrSessionClosed means the operation was issued against a session
	// whose working copy has already been released.
	ErrSessionClosed = errors.New("session closed")
)

// Message returns a short human-readable message for a known error kind,
// or err.Error() for anything else. ErrCancelled maps to the empty string:
// callers must not display it.
func Message(err error) string {
	switch {
	case errors.Is(err, ErrArchiveCorrupt):
		return "The archive could not be read."
	case errors.Is(err, ErrUnsupportedFormat):
		return "This archive format is not supported."
	case errors.Is(err, ErrSchemaUnrecognized):
		return "The deck database uses an unrecognized schema."
	case errors.Is(err, ErrNotFound):
		return "Card not found."
	case errors.Is(err, ErrInvalidField):
		return "No such field on this card."
	case errors.Is(err, ErrUnknownModel):
		return "No such note type."
	case errors.Is(err, ErrExportFailed):
		return "The deck could not be saved."
	case errors.Is(err, ErrSessionClosed):
		return "No deck is currently open."
	case errors.Is(err, ErrCancelled):
		return ""
	default:
		return err.Error()
	}
}
