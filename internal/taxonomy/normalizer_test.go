package taxonomy

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeSynonyms(t *testing.T) {
	cases := []struct {
		raw  string
		want CanonicalType
	}{
		{"Phone Call", TypeCall},
		{"phone-call", TypeCall},
		{"COLD   CALL", TypeCall},
		{"site visit", TypeSiteVisit},
		{"Site-Visit", TypeSiteVisit},
		{"follow up", TypeFollowUp},
		{"follow_up", TypeFollowUp},
		{"followup", TypeFollowUp},
		{"Quote", TypeProposal},
		{"invoice", TypeInvoiceSent},
		{"todo", TypeTask},
		{"meeting", TypeMeeting},
	}

	for _, tc := range cases {
		got := Normalize(KindActivity, tc.raw)
		require.Equal(t, tc.want, got, "raw=%q", tc.raw)
	}
}

func TestNormalizeFallbacks(t *testing.T) {
	require.Equal(t, TypeActivity, Normalize(KindActivity, ""))
	require.Equal(t, TypeActivity, Normalize(KindActivity, "   \t "))
	require.Equal(t, TypeActivity, Normalize(KindActivity, "q3 retro 2024"))
	require.Equal(t, TypeMeeting, Normalize(KindCalendar, ""))
	require.Equal(t, TypeMeeting, Normalize(KindCalendar, "something new"))
}

func TestNormalizeRespectsKindAllowList(t *testing.T) {
	// email is valid for activities but not for calendar events; the mapped
	// value must not leak past the narrower allow-list.
	require.Equal(t, TypeEmail, Normalize(KindActivity, "e-mail"))
	require.Equal(t, TypeMeeting, Normalize(KindCalendar, "e-mail"))
}

func TestNormalizeIdempotent(t *testing.T) {
	for _, canonical := range AllowList(KindActivity) {
		once := Normalize(KindActivity, string(canonical))
		require.Equal(t, canonical, once)
		require.Equal(t, once, Normalize(KindActivity, string(once)))
	}
}

func TestNormalizeTotalOverAllowList(t *testing.T) {
	inputs := []string{"", " ", "123", "call", "CALL", "phone call", "nonsense-label", "a-b-c"}
	for _, raw := range inputs {
		got := Normalize(KindActivity, raw)
		require.True(t, Allowed(KindActivity, got), "raw=%q resolved to %q", raw, got)
	}
}

func TestSynonymsOfSameTypeAgree(t *testing.T) {
	groups := map[CanonicalType][]string{
		TypeCall:      {"call", "Phone Call", "cold call", "sales-call", "video call"},
		TypeSiteVisit: {"site_visit", "site visit", "Site-Visit", "walkthrough"},
		TypeFollowUp:  {"follow up", "follow-up", "followup", "check in"},
	}
	for want, labels := range groups {
		for _, raw := range labels {
			require.Equal(t, want, Normalize(KindActivity, raw), "raw=%q", raw)
		}
	}
}

func TestKey(t *testing.T) {
	require.Equal(t, "phone_call", Key("  Phone   Call "))
	require.Equal(t, "site_visit", Key("site-visit"))
	require.Equal(t, "a_b_c", Key("a - b\t-c"))
	require.Equal(t, "", Key("   "))
}
