package forms

import (
	"regexp"
	"strings"

	"github.com/joseph-ayodele/insolvency-docs/constants"
)

const (
	name  = `([A-Z][A-Za-z'.&\-]*(?:[ \t]+[A-Z][A-Za-z'.&\-]*){0,5})`
	month = `(?i:jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)\.?`
	date  = `(\d{4}-\d{2}-\d{2}` +
		`|\d{1,2}[/.\-]\d{1,2}[/.\-]\d{2,4}` +
		`|` + month + `[ \t]+\d{1,2}(?:st|nd|rd|th)?,?[ \t]+\d{4}` +
		`|\d{1,2}(?:st|nd|rd|th)?[ \t]+(?i:day[ \t]+of[ \t]+)?` + month + `,?[ \t]+\d{4})`
	sep = `[ \t]*[:\-]?[ \t]*`
)

var (
	reFormNumber   = regexp.MustCompile(`(?i)\bform[ \t]*(?:no\.?|number|#)?[ \t]*(\d{1,3}(?:\.\d{1,2})?)\b`)
	reClientName   = regexp.MustCompile(`(?i:debtor'?s?[ \t]+name|client[ \t]+name|name[ \t]+of[ \t]+(?:the[ \t]+)?debtor|in[ \t]+the[ \t]+matter[ \t]+of(?:[ \t]+the[ \t]+(?:bankruptcy|proposal)[ \t]+of)?)` + sep + name)
	reTrusteeName  = regexp.MustCompile(`(?i:(?:licensed[ \t]+insolvency[ \t]+)?trustee'?s?[ \t]+name|name[ \t]+of[ \t]+(?:the[ \t]+)?trustee|licensed[ \t]+insolvency[ \t]+trustee)` + sep + name)
	reClaimantName = regexp.MustCompile(`(?i:claimant'?s?[ \t]+name|creditor'?s?[ \t]+name|name[ \t]+of[ \t]+(?:the[ \t]+)?(?:claimant|creditor))` + sep + name)
	reDateSigned   = regexp.MustCompile(`(?i:date[ \t]+signed|signed[ \t]+(?:on|this)|dated(?:[ \t]+at[ \t]+[A-Za-z .]+?,)?(?:[ \t]+this)?|date)` + sep + date)
	reProposalType = regexp.MustCompile(`(?i)\b(consumer|commercial|division[ \t]+(?:i|1|one))[ \t]+proposal\b`)

	reProofOfClaim     = regexp.MustCompile(`(?i)\bform[ \t]*(?:no\.?|#)?[ \t]*31\b|\bproof\s+of\s+claim\b`)
	reConsumerProposal = regexp.MustCompile(`(?i)\bform[ \t]*(?:no\.?|#)?[ \t]*47\b|\bconsumer\s+proposal\b`)
)

// nameStopWords end a captured name; they are labels of the next field.
var nameStopWords = map[string]struct{}{
	"trustee": {}, "debtor": {}, "creditor": {}, "claimant": {}, "client": {},
	"date": {}, "dated": {}, "form": {}, "name": {}, "address": {}, "signed": {},
	"signature": {}, "licensed": {}, "province": {}, "city": {}, "amount": {},
}

// Recognizer classifies text against a Catalog and extracts fields.
type Recognizer struct {
	catalog Catalog
}

// NewRecognizer uses catalog, or DefaultCatalog when it is empty.
func NewRecognizer(catalog Catalog) *Recognizer {
	if len(catalog) == 0 {
		catalog = DefaultCatalog()
	}
	return &Recognizer{catalog: catalog}
}

// IdentifyFormType returns the first matching signature's type, or unknown.
func (r *Recognizer) IdentifyFormType(text string) constants.FormType {
	for _, s := range r.catalog {
		if s.Pattern.MatchString(text) {
			return s.Type
		}
	}
	return constants.FormTypeUnknown
}

// ExtractFormFields pulls every recognizable field out of text. Proof of
// claim and consumer proposal markers override formNumber and formType.
func (r *Recognizer) ExtractFormFields(text string) Fields {
	f := Fields{}

	switch {
	case reProofOfClaim.MatchString(text):
		f.set(FieldFormNumber, "31")
		f.set(FieldFormType, string(constants.FormTypeProofOfClaim))
	case reConsumerProposal.MatchString(text):
		f.set(FieldFormNumber, "47")
		f.set(FieldFormType, string(constants.FormTypeConsumerProposal))
	default:
		f.set(FieldFormNumber, capture(reFormNumber, text))
		if ft := r.IdentifyFormType(text); ft != constants.FormTypeUnknown {
			f.set(FieldFormType, string(ft))
		}
	}

	f.set(FieldClientName, cleanName(capture(reClientName, text)))
	f.set(FieldTrusteeName, cleanName(capture(reTrusteeName, text)))
	f.set(FieldClaimantName, cleanName(capture(reClaimantName, text)))
	f.set(FieldDateSigned, collapse(capture(reDateSigned, text)))
	f.set(FieldProposalType, proposalType(capture(reProposalType, text)))
	return f
}

func capture(re *regexp.Regexp, text string) string {
	m := re.FindStringSubmatch(text)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// cleanName cuts a capture at the first word that is really the next label.
func cleanName(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		if _, stop := nameStopWords[strings.ToLower(strings.Trim(w, ".,'"))]; stop {
			words = words[:i]
			break
		}
	}
	return strings.TrimRight(strings.Join(words, " "), ",-")
}

func proposalType(s string) string {
	s = strings.ToLower(collapse(s))
	switch {
	case s == "":
		return ""
	case strings.HasPrefix(s, "division"):
		return "division-i"
	default:
		return s
	}
}
