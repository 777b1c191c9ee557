package constants

import (
	"strings"
)

// FormType is the closed set of document classifications produced by form recognition.
type FormType string

const (
	FormTypeUnknown            FormType = "unknown"
	FormTypeBankruptcy         FormType = "bankruptcy"
	FormTypeProposal           FormType = "proposal"
	FormTypeMeetingOfCreditors FormType = "meeting-of-creditors"
	FormTypeCourtOrder         FormType = "court-order"
	FormTypeProofOfClaim       FormType = "proof-of-claim"
	FormTypeConsumerProposal   FormType = "consumer-proposal"
)

var allFormTypes = []FormType{
	FormTypeUnknown,
	FormTypeBankruptcy,
	FormTypeProposal,
	FormTypeMeetingOfCreditors,
	FormTypeCourtOrder,
	FormTypeProofOfClaim,
	FormTypeConsumerProposal,
}

func FormTypesAsStringSlice() []string {
	result := make([]string, len(allFormTypes))
	for i, ft := range allFormTypes {
		result[i] = string(ft)
	}
	return result
}

// ParseFormType maps a tag (as written in catalogs or by callers) to a FormType.
func ParseFormType(input string) (FormType, bool) {
	normalized := strings.ToLower(strings.TrimSpace(input))
	if normalized == "" {
		return FormTypeUnknown, false
	}

	synonyms := map[string]FormType{
		"assignment":        FormTypeBankruptcy,
		"meeting":           FormTypeMeetingOfCreditors,
		"court":             FormTypeCourtOrder,
		"claim":             FormTypeProofOfClaim,
		"form31":            FormTypeProofOfClaim,
		"form47":            FormTypeConsumerProposal,
		"division-i":        FormTypeProposal,
		"division-1":        FormTypeProposal,
		"consumer proposal": FormTypeConsumerProposal,
		"proof of claim":    FormTypeProofOfClaim,
	}
	if ft, ok := synonyms[normalized]; ok {
		return ft, true
	}

	for _, ft := range allFormTypes {
		if normalized == string(ft) {
			return ft, true
		}
	}
	return FormTypeUnknown, false
}

// DocumentType is the caller-supplied hint carried on queued tasks.
type DocumentType string

const (
	DocumentTypeGeneral   DocumentType = "general"
	DocumentTypeForm      DocumentType = "form"
	DocumentTypeFinancial DocumentType = "financial"
)

// IsFinancial reports whether the hint routes to financial analysis.
func (t DocumentType) IsFinancial() bool {
	switch strings.ToLower(string(t)) {
	case string(DocumentTypeFinancial), "income-expense", "form-65", "statement-of-affairs":
		return true
	}
	return false
}
