package scan

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "bare domain gets https", input: "example.com", want: "https://example.com"},
		{name: "surrounding whitespace trimmed", input: "  https://example.com/path  ", want: "https://example.com/path"},
		{name: "http preserved", input: "http://example.com", want: "http://example.com"},
		{name: "ftp rejected", input: "ftp://example.com", wantErr: true},
		{name: "garbage rejected", input: "not a url!!", wantErr: true},
		{name: "empty rejected", input: "   ", wantErr: true},
		{name: "scheme only rejected", input: "https://", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := NormalizeURL(tc.input)
			if tc.wantErr {
				require.ErrorIs(t, err, ErrInvalidURL)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got.String())
		})
	}
}

func TestNormalizeURLIdempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{"example.com", "  http://example.com/a?b=c ", "https://sub.example.com/path"}
	for _, in := range inputs {
		first, err := NormalizeURL(in)
		require.NoError(t, err)
		second, err := NormalizeURL(first.String())
		require.NoError(t, err)
		require.Equal(t, first.String(), second.String())
	}
}

func TestResolveHref(t *testing.T) {
	t.Parallel()

	base, err := NormalizeURL("https://example.com/docs/page.html")
	require.NoError(t, err)

	rel, err := base.Resolve("../about")
	require.NoError(t, err)
	require.Equal(t, "https://example.com/about", rel.String())

	abs, err := base.Resolve("https://other.com/x")
	require.NoError(t, err)
	require.Equal(t, "other.com", abs.Host())

	frag, err := base.Resolve("/pricing#top")
	require.NoError(t, err)
	require.Equal(t, "https://example.com/pricing", frag.String())

	_, err = base.Resolve("javascript:void(0)")
	require.ErrorIs(t, err, ErrInvalidURL)
}

func TestFingerprintURL(t *testing.T) {
	t.Parallel()

	a, err := NormalizeURL("https://Example.COM/Path")
	require.NoError(t, err)
	b, err := NormalizeURL("  https://example.com/path ")
	require.NoError(t, err)

	require.Equal(t, FingerprintURL(a), FingerprintURL(b))
	require.Len(t, string(FingerprintURL(a)), 32)

	c, err := NormalizeURL("https://example.com/other")
	require.NoError(t, err)
	require.NotEqual(t, FingerprintURL(a), FingerprintURL(c))
}
