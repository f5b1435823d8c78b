package manager

import "net/http"

// documentNotFoundError is returned for calls on a document that is not open.
type documentNotFoundError struct{ id string }

func (e documentNotFoundError) Error() string   { return "document not open: " + e.id }
func (e documentNotFoundError) StatusCode() int { return http.StatusNotFound }

// ErrDocumentNotFound returns the error used for unknown document ids.
func ErrDocumentNotFound(id string) error { return documentNotFoundError{id: id} }

// IsDocumentNotFound reports whether err indicates an unknown document.
func IsDocumentNotFound(err error) bool {
	_, ok := err.(documentNotFoundError)
	return ok
}

// noSuggestionError signals that accept found no active suggestion.
type noSuggestionError struct{ id string }

func (e noSuggestionError) Error() string   { return "no suggestion for " + e.id }
func (e noSuggestionError) StatusCode() int { return http.StatusNotFound }

// IsNoSuggestion reports whether err means there was nothing to accept.
func IsNoSuggestion(err error) bool {
	_, ok := err.(noSuggestionError)
	return ok
}

// invalidRequestError wraps validation failures (400).
type invalidRequestError struct{ msg string }

func (e invalidRequestError) Error() string   { return e.msg }
func (e invalidRequestError) StatusCode() int { return http.StatusBadRequest }

// desyncError means an edit does not fit the mirrored document; the host must
// re-open the document with its full text (409).
type desyncError struct{ err error }

func (e desyncError) Error() string   { return e.err.Error() }
func (e desyncError) Unwrap() error   { return e.err }
func (e desyncError) StatusCode() int { return http.StatusConflict }

// IsDesync reports whether err indicates a desynchronized document mirror.
func IsDesync(err error) bool {
	_, ok := err.(desyncError)
	return ok
}
