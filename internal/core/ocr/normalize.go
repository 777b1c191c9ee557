package ocr

import (
	"regexp"
	"strings"
)

var (
	reDisallowed = regexp.MustCompile(`[^\w\s\-.,()$%]`)
	reBoxNoise   = regexp.MustCompile(`(?m)^\s*[_\-]{3,}\s*$`)
)

// corrections lists frequent OCR misreads of domain vocabulary with the
// intended word, sorted by misread so rules apply in a fixed order.
var corrections = []struct{ wrong, right string }{
	{"arnount", "amount"},
	{"bankrupcty", "bankruptcy"},
	{"bankrupicy", "bankruptcy"},
	{"bankruplcy", "bankruptcy"},
	{"bankruptcv", "bankruptcy"},
	{"c1aim", "claim"},
	{"clairn", "claim"},
	{"consurner", "consumer"},
	{"cred1tor", "creditor"},
	{"credilor", "creditor"},
	{"creditar", "creditor"},
	{"credltor", "creditor"},
	{"dcbtor", "debtor"},
	{"debior", "debtor"},
	{"deblor", "debtor"},
	{"dischargc", "discharge"},
	{"dividcnd", "dividend"},
	{"insolvencv", "insolvency"},
	{"lrustee", "trustee"},
	{"propcsal", "proposal"},
	{"proposai", "proposal"},
	{"sccured", "secured"},
	{"staternent", "statement"},
	{"tru5tee", "trustee"},
	{"trustce", "trustee"},
	{"trustec", "trustee"},
	{"unsecurcd", "unsecured"},
}

// canonicalTerms are rewritten to this exact spelling wherever they appear
// with any casing or irregular spacing between their words.
var canonicalTerms = []string{
	"licensed insolvency trustee",
	"superintendent of bankruptcy",
	"assignment in bankruptcy",
	"division i proposal",
	"consumer proposal",
	"notice of intention",
	"statement of affairs",
	"meeting of creditors",
	"stay of proceedings",
	"proof of claim",
	"secured creditor",
	"unsecured creditor",
	"preferred creditor",
	"official receiver",
	"monthly income",
	"surplus income",
	"priority claim",
	"court order",
	"bankruptcy",
	"bankrupt",
	"insolvency",
	"trustee",
	"creditor",
	"debtor",
	"discharge",
	"dividend",
	"guarantor",
	"estate",
	"realization",
	"deficiency",
}

type replacement struct {
	re   *regexp.Regexp
	with string
}

var (
	correctionRules = compileCorrections()
	canonicalRules  = compileCanonical()
)

func compileCorrections() []replacement {
	out := make([]replacement, 0, len(corrections))
	for _, c := range corrections {
		out = append(out, replacement{
			re:   regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(c.wrong) + `\b`),
			with: c.right,
		})
	}
	return out
}

func compileCanonical() []replacement {
	out := make([]replacement, 0, len(canonicalTerms))
	for _, term := range canonicalTerms {
		parts := strings.Fields(term)
		for i := range parts {
			parts[i] = regexp.QuoteMeta(parts[i])
		}
		out = append(out, replacement{
			re:   regexp.MustCompile(`(?i)\b` + strings.Join(parts, `\s*`) + `\b`),
			with: term,
		})
	}
	return out
}

// Clean normalizes raw recognized text. It is deterministic and idempotent:
// Clean(Clean(s)) == Clean(s).
func Clean(raw string) string {
	if raw == "" {
		return ""
	}
	// strip first so lines reduced to rules by the strip are dropped too
	s := reDisallowed.ReplaceAllString(raw, "")
	s = reBoxNoise.ReplaceAllString(s, " ")
	s = collapseWhitespace(s)
	for _, r := range correctionRules {
		s = r.re.ReplaceAllLiteralString(s, r.with)
	}
	for _, r := range canonicalRules {
		s = r.re.ReplaceAllLiteralString(s, r.with)
	}
	return collapseWhitespace(s)
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
