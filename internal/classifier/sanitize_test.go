package classifier

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseResponseSanitizesFields(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		raw       string
		wantScore int
		wantTags  int
	}{
		{
			name:      "well formed",
			raw:       `{"summary":"s","risk_score":92,"reason":"r","category":"Technology","tags":["a","b"]}`,
			wantScore: 92,
			wantTags:  2,
		},
		{
			name:      "non-numeric score defaults",
			raw:       `{"summary":"s","risk_score":"high","reason":"r","category":"c","tags":[]}`,
			wantScore: DefaultRiskScore,
		},
		{
			name:      "numeric string score accepted",
			raw:       `{"summary":"s","risk_score":"73","reason":"r","category":"c","tags":[]}`,
			wantScore: 73,
		},
		{
			name:      "missing score defaults",
			raw:       `{"summary":"s","reason":"r","category":"c"}`,
			wantScore: DefaultRiskScore,
		},
		{
			name:      "score above range clamped",
			raw:       `{"summary":"s","risk_score":250,"reason":"r","category":"c"}`,
			wantScore: 100,
		},
		{
			name:      "negative score clamped",
			raw:       `{"summary":"s","risk_score":-5,"reason":"r","category":"c"}`,
			wantScore: 0,
		},
		{
			name:      "tags truncated to five",
			raw:       `{"summary":"s","risk_score":50,"reason":"r","category":"c","tags":["1","2","3","4","5","6","7"]}`,
			wantScore: 50,
			wantTags:  MaxTags,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			result, err := parseResponse(tc.raw)
			require.NoError(t, err)
			require.Equal(t, tc.wantScore, result.RiskScore)
			require.Len(t, result.Tags, tc.wantTags)
		})
	}
}

func TestParseResponsePlaceholders(t *testing.T) {
	t.Parallel()

	result, err := parseResponse(`{"risk_score":40}`)
	require.NoError(t, err)
	require.Equal(t, placeholderSummary, result.Summary)
	require.Equal(t, placeholderReason, result.Reason)
	require.Equal(t, placeholderCategory, result.Category)
}

func TestParseResponseStripsCodeFence(t *testing.T) {
	t.Parallel()

	fenced := "```json\n" + goodResponse + "\n```"
	result, err := parseResponse(fenced)
	require.NoError(t, err)
	require.Equal(t, 92, result.RiskScore)
}

func TestParseResponseRejectsNonJSON(t *testing.T) {
	t.Parallel()

	_, err := parseResponse("I think this site is probably fine.")
	require.Error(t, err)
}
