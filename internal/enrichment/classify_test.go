package enrichment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	hit := Match{ImageURL: "http://x/b.jpg", Heuristic: "twitter:image"}
	testCases := []struct {
		name    string
		res     FetchResult
		match   Match
		matched bool
		want    Outcome
	}{
		{"404 is a broken link", NotFoundStatus(), Match{}, false, BrokenLink()},
		{"404 ignores any match", NotFoundStatus(), hit, true, BrokenLink()},
		{"fetch error is a miss", OtherError(0, "timeout"), Match{}, false, NotFound(MissFetchError, "timeout")},
		{"server error is a miss", OtherError(500, "Internal Server Error"), hit, true, NotFound(MissFetchError, "Internal Server Error")},
		{"content with match is found", Content(200, []byte("<html>")), hit, true, Found("http://x/b.jpg", "twitter:image")},
		{"content without match is a miss", Content(200, []byte("<html>")), Match{}, false, NotFound(MissNoMatch, "")},
		{"empty match counts as a miss", Content(200, nil), Match{Heuristic: "og:image"}, true, NotFound(MissNoMatch, "")},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, Classify(tc.res, tc.match, tc.matched))
		})
	}
}

func TestOutcomeKindString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "found", OutcomeFound.String())
	assert.Equal(t, "broken_link", OutcomeBrokenLink.String())
	assert.Equal(t, "not_found", OutcomeNotFound.String())
	assert.Equal(t, "error", FetchError.String())
}
