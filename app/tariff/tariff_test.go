package tariff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchSteelPipes(t *testing.T) {
	ref := Default()
	got := ref.Match("Welded steel pipes, 2 inch", 3)
	require.NotEmpty(t, got)
	assert.Equal(t, "730630", got[0].Code)
	for _, c := range got {
		assert.LessOrEqual(t, c.Confidence, 90)
	}

	assert.Empty(t, ref.Match("quantum flux capacitor", 3))
}

func TestSuggestionsAreReferenceSourced(t *testing.T) {
	s := Default().Suggestions("lithium batteries", 2)
	require.NotEmpty(t, s)
	assert.Equal(t, "850760", s[0].Code)
	assert.Equal(t, "reference", s[0].Source)
}

func TestLookup(t *testing.T) {
	ref := Default()
	e, ok := ref.Lookup("8507.60.0020")
	require.True(t, ok)
	assert.Equal(t, 3.4, e.MFNRate)

	_, ok = ref.Lookup("8507")
	assert.False(t, ok)
	_, ok = ref.Lookup("999999")
	assert.False(t, ok)
}

func TestAgreementFor(t *testing.T) {
	assert.Equal(t, Agreement{Name: "USMCA", Eligible: true}, AgreementFor("Canada", "US"))
	assert.Equal(t, Agreement{Name: "USMCA", Eligible: true}, AgreementFor("mx", "CAN"))
	assert.Equal(t, Agreement{Name: "EU", Eligible: true}, AgreementFor("DE", "france"))
	assert.False(t, AgreementFor("CN", "US").Eligible)
	assert.False(t, AgreementFor("US", "USA").Eligible)
	assert.False(t, AgreementFor("", "US").Eligible)
}

func TestEstimateDuty(t *testing.T) {
	assert.True(t, EstimateDuty(12500, 0).IsZero())
	assert.Equal(t, "412.50", EstimateDuty(12500, 3.3).StringFixed(2))
	assert.Equal(t, "0.10", EstimateDuty(0.99, 9.9).StringFixed(2))
}

func TestParseRejectsBadEntries(t *testing.T) {
	_, err := Parse([]byte("entries:\n  - code: \"73.06\"\n"))
	assert.Error(t, err)
	_, err = Parse([]byte("entries:\n  - code: \"730630\"\n    mfnRate: 120\n"))
	assert.Error(t, err)
	_, err = Parse([]byte("entries: []\n"))
	assert.Error(t, err)
}
