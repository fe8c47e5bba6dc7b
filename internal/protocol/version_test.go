package protocol

import "testing"

func TestVersionOrdering(t *testing.T) {
	cases := []struct {
		name string
		a, b Version
		less bool
	}{
		{"equal", Version{3, 4, 5, StageBeta, 1}, Version{3, 4, 5, StageBeta, 1}, false},
		{"major", Version{2, 9, 9, StageRelease, 0}, Version{3, 0, 0, StageAlpha, 0}, true},
		{"minor", Version{3, 3, 9, StageRelease, 0}, Version{3, 4, 0, StageAlpha, 0}, true},
		{"patch", Version{3, 4, 4, StageRelease, 0}, Version{3, 4, 5, StageAlpha, 0}, true},
		{"stage", Version{3, 4, 5, StageAlpha, 9}, Version{3, 4, 5, StageBeta, 0}, true},
		{"prerelease below release", Version{3, 4, 5, StageRC, 3}, Version{3, 4, 5, StageRelease, 0}, true},
		{"build", Version{3, 4, 5, StageBeta, 1}, Version{3, 4, 5, StageBeta, 2}, true},
	}
	for _, tc := range cases {
		if got := tc.a.Less(tc.b); got != tc.less {
			t.Fatalf("%s: %v < %v = %v, want %v", tc.name, tc.a, tc.b, got, tc.less)
		}
		if tc.less && tc.b.Less(tc.a) {
			t.Fatalf("%s: ordering is not antisymmetric", tc.name)
		}
	}
}

func TestVersionString(t *testing.T) {
	if got := (Version{3, 4, 8, StageRelease, 0}).String(); got != "3.4.8" {
		t.Fatalf("unexpected release string %q", got)
	}
	if got := (Version{3, 4, 5, StageBeta, 4}).String(); got != "3.4.5-beta4" {
		t.Fatalf("unexpected pre-release string %q", got)
	}
}
