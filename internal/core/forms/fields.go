// Package forms classifies insolvency documents and pulls labelled fields out of their text.
package forms

import (
	"encoding/json"
	"sort"
)

// FieldKey names an extracted field.
type FieldKey string

const (
	FieldFormNumber   FieldKey = "formNumber"
	FieldFormType     FieldKey = "formType"
	FieldClientName   FieldKey = "clientName"
	FieldTrusteeName  FieldKey = "trusteeName"
	FieldClaimantName FieldKey = "claimantName"
	FieldDateSigned   FieldKey = "dateSigned"
	FieldProposalType FieldKey = "proposalType"
)

// AllFields lists every key ExtractFormFields may populate.
var AllFields = []FieldKey{
	FieldFormNumber, FieldFormType, FieldClientName, FieldTrusteeName,
	FieldClaimantName, FieldDateSigned, FieldProposalType,
}

// RequiredFields must be present for a form to count as complete.
var RequiredFields = []FieldKey{FieldFormNumber, FieldClientName, FieldDateSigned}

// Fields is a sparse mapping. A missing key means "not found"; values are never empty.
type Fields map[FieldKey]string

func (f Fields) Get(k FieldKey) (string, bool) {
	v, ok := f[k]
	return v, ok
}

// set stores v unless it is empty.
func (f Fields) set(k FieldKey, v string) {
	if v == "" {
		return
	}
	f[k] = v
}

// Keys returns the populated keys in sorted order.
func (f Fields) Keys() []FieldKey {
	keys := make([]FieldKey, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// JSON encodes the fields as a flat object.
func (f Fields) JSON() ([]byte, error) {
	if f == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[FieldKey]string(f))
}

// Validation reports which required fields are missing. It is advisory.
type Validation struct {
	Complete bool       `json:"complete"`
	Missing  []FieldKey `json:"missing,omitempty"`
}

// ValidateFormFields checks fields against RequiredFields.
func ValidateFormFields(fields Fields) Validation {
	var missing []FieldKey
	for _, k := range RequiredFields {
		if _, ok := fields[k]; !ok {
			missing = append(missing, k)
		}
	}
	return Validation{Complete: len(missing) == 0, Missing: missing}
}
