package domain

import "testing"

func TestFeedSafety(t *testing.T) {
	cases := []struct {
		name string
		feed SourceFeed
		want Safety
	}{
		{
			name: "restricted license is unsafe",
			feed: SourceFeed{LicenseStatus: LicenseRestricted, SafetyChecks: map[string]bool{"tos": true}},
			want: SafetyUnsafe,
		},
		{
			name: "unknown license needs review",
			feed: SourceFeed{LicenseStatus: LicenseUnknown, SafetyChecks: map[string]bool{"tos": true}},
			want: SafetyReview,
		},
		{
			name: "no checks yet needs review",
			feed: SourceFeed{LicenseStatus: LicenseUnrestricted},
			want: SafetyReview,
		},
		{
			name: "failed check needs review",
			feed: SourceFeed{LicenseStatus: LicenseUnrestricted, SafetyChecks: map[string]bool{"tos": true, "attribution": false}},
			want: SafetyReview,
		},
		{
			name: "all checks passed is safe",
			feed: SourceFeed{LicenseStatus: LicenseUnrestricted, SafetyChecks: map[string]bool{"tos": true, "attribution": true}},
			want: SafetySafe,
		},
		{
			name: "zero value needs review",
			feed: SourceFeed{},
			want: SafetyReview,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.feed.Safety(); got != tc.want {
				t.Fatalf("ожидали %s, получили %s", tc.want, got)
			}
		})
	}
}
