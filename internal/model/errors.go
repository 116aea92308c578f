package model

import "github.com/rotisserie/eris"

// Document-level error taxonomy. Every outcome is recorded on the document's
// result; none of these abort a batch.
var (
	ErrDocumentUnreadable = eris.New("document unreadable")
	ErrNoValueFound       = eris.New("no value found")
	ErrAmbiguousValue     = eris.New("ambiguous value")
	ErrExternalService    = eris.New("external service error")
	ErrInvalidCorrection  = eris.New("invalid correction")
)
