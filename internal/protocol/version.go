package protocol

import "fmt"

// Stage orders pre-release tiers below final releases.
type Stage uint8

const (
	StageAlpha Stage = iota
	StageBeta
	StageRC
	StageRelease
)

func (s Stage) String() string {
	switch s {
	case StageAlpha:
		return "alpha"
	case StageBeta:
		return "beta"
	case StageRC:
		return "rc"
	case StageRelease:
		return ""
	default:
		return "unknown"
	}
}

// Version identifies a client or server protocol build. Ordering is
// component-wise: major, minor, patch, stage, build.
type Version struct {
	Major uint8
	Minor uint8
	Patch uint8
	Stage Stage
	Build uint8
}

// CurrentVersion is the protocol build this server speaks.
var CurrentVersion = Version{Major: 3, Minor: 4, Patch: 8, Stage: StageRelease}

// MinimumClientVersion is the oldest client build accepted at login. Anything
// below is denied regardless of payload validity.
var MinimumClientVersion = Version{Major: 3, Minor: 4, Patch: 5, Stage: StageBeta, Build: 4}

// Less reports whether v orders strictly before o.
func (v Version) Less(o Version) bool {
	//1.- Compare each component in significance order, falling through on ties.
	if v.Major != o.Major {
		return v.Major < o.Major
	}
	if v.Minor != o.Minor {
		return v.Minor < o.Minor
	}
	if v.Patch != o.Patch {
		return v.Patch < o.Patch
	}
	if v.Stage != o.Stage {
		return v.Stage < o.Stage
	}
	return v.Build < o.Build
}

func (v Version) String() string {
	if v.Stage == StageRelease {
		return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	}
	return fmt.Sprintf("%d.%d.%d-%s%d", v.Major, v.Minor, v.Patch, v.Stage, v.Build)
}
