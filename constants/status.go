package constants

// DocumentStatus is the processing status written back to the document sink.
type DocumentStatus string

// Stable values (store these exact strings in DB).
const (
	DocumentStatusPending             DocumentStatus = "pending"
	DocumentStatusProcessing          DocumentStatus = "processing"
	DocumentStatusProcessingFinancial DocumentStatus = "processing_financial"
	DocumentStatusComplete            DocumentStatus = "complete"
	DocumentStatusFailed              DocumentStatus = "failed"
)

// Terminal reports whether no further transition is expected.
func (s DocumentStatus) Terminal() bool {
	return s == DocumentStatusComplete || s == DocumentStatusFailed
}

// Valid reports whether s is one of the known statuses.
func (s DocumentStatus) Valid() bool {
	switch s {
	case DocumentStatusPending, DocumentStatusProcessing, DocumentStatusProcessingFinancial,
		DocumentStatusComplete, DocumentStatusFailed:
		return true
	}
	return false
}

// PageOutcome records how a page's text was obtained.
type PageOutcome string

const (
	PageOutcomeNativeText   PageOutcome = "native-text"
	PageOutcomeOCRRecovered PageOutcome = "ocr-recovered"
	PageOutcomeFailed       PageOutcome = "failed"
)
