package ocr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClean(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"collapses whitespace", "  Form\t31 \n\n proof   of claim  ", "Form 31 proof of claim"},
		{"strips disallowed characters", "Amount: $1,250.00 (CAD) @ 5% #ref", "Amount $1,250.00 (CAD) 5% ref"},
		{"keeps hyphens and underscores", "Re-filed under file_no 31-2024", "Re-filed under file_no 31-2024"},
		{"fixes misreads case-insensitively", "BANKRUPTCV notice to the Credltor", "bankruptcy notice to the creditor"},
		{"only whole words", "trustcework credltors", "trustcework credltors"},
		{"canonical multi-word spacing", "filed a Consumer   Proposal with the SECURED\ncreditor", "filed a consumer proposal with the secured creditor"},
		{"canonical joined words", "the meetingof creditors was held", "the meeting of creditors was held"},
		{"box noise lines", "Header\n_____\nBody", "Header Body"},
		{"rules left by the strip", "Header\n-*--\n_#_#_\nBody", "Header Body"},
		{"numbers survive", "Claim 12,345.67 on 2024-03-01", "Claim 12,345.67 on 2024-03-01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Clean(tt.in))
		})
	}
}

func TestClean_Idempotent(t *testing.T) {
	inputs := []string{
		"Licensed   Insolvency Trustee: Jane Doe ## Form 47 | Consumer Proposal",
		"  bankruptcv of  the  dcbtor , £500  owed to unsecurcd creditors ",
		"Proof of\tClaim\n\nCreditor's name: ACME Ltd. ¶ amount $ 1 200",
		"a @ b # c",
		"-*--",
		"_#_#_",
		"Header\n-*-*-\nBody",
		"",
	}
	for _, in := range inputs {
		once := Clean(in)
		assert.Equal(t, once, Clean(once), "input %q", in)
	}
}

func TestCorrections_FixedOrder(t *testing.T) {
	for i := 1; i < len(corrections); i++ {
		assert.Less(t, corrections[i-1].wrong, corrections[i].wrong, "corrections must stay sorted and unique")
	}
	for i, r := range correctionRules {
		assert.Equal(t, corrections[i].right, r.with)
	}
}
