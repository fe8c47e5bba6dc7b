package lifecycle

import (
	"fmt"

	"ballancemmo/relay/internal/protocol"
)

// Default nickname length bounds, overridable through configuration.
const (
	DefaultMinNameLength = 3
	DefaultMaxNameLength = 20
)

// Rejection describes a failed login validation: the connection end-reason
// code and the human-readable text sent with the denial notice.
type Rejection struct {
	Code   int
	Reason string
}

// Validator runs the login checks in their fixed order. Lookups are injected
// so the machine stays independent of the session table and moderation store.
type Validator struct {
	MinNameLength  int
	MaxNameLength  int
	MinimumVersion protocol.Version

	// BanReason reports whether the identity token is banned and why.
	BanReason func(uuid string) (string, bool)
	// NameTaken reports a case-insensitive collision with an active session.
	NameTaken func(name string) bool
}

// Validate checks a login request, short-circuiting on the first failure:
// ban, version, name conflict, name length, name charset. A nil result means
// the login is acceptable.
func (v *Validator) Validate(req *protocol.LoginRequestV3) *Rejection {
	if reason, banned := v.banReason(protocol.UUIDString(req.UUID)); banned {
		text := "You are banned from this server"
		if reason != "" {
			text += ": " + reason
		}
		return &Rejection{Code: protocol.EndBanned, Reason: text + "."}
	}
	if req.Version.Less(v.MinimumVersion) {
		return &Rejection{
			Code: protocol.EndInvalidVersion,
			Reason: fmt.Sprintf("Outdated client (client: %v; minimum: %v).",
				req.Version, v.MinimumVersion),
		}
	}
	if v.NameTaken != nil && v.NameTaken(req.Nickname) {
		return &Rejection{
			Code:   protocol.EndNameConflict,
			Reason: fmt.Sprintf("A player with the same username %q already exists on this server.", req.Nickname),
		}
	}
	min, max := v.nameBounds()
	if n := len(req.Nickname); n < min || n > max {
		return &Rejection{
			Code:   protocol.EndNameLength,
			Reason: fmt.Sprintf("Nickname must be between %d and %d characters in length.", min, max),
		}
	}
	if pos, ok := invalidNameCharPos(req.Nickname); ok {
		return &Rejection{
			Code: protocol.EndNameInvalidChar,
			Reason: fmt.Sprintf("Invalid character %q at position %d; nicknames can only contain alphanumeric characters and underscores.",
				req.Nickname[pos], pos),
		}
	}
	return nil
}

func (v *Validator) banReason(uuid string) (string, bool) {
	if v.BanReason == nil {
		return "", false
	}
	return v.BanReason(uuid)
}

func (v *Validator) nameBounds() (int, int) {
	min, max := v.MinNameLength, v.MaxNameLength
	if min <= 0 {
		min = DefaultMinNameLength
	}
	if max <= 0 {
		max = DefaultMaxNameLength
	}
	return min, max
}

// invalidNameCharPos returns the byte position of the first character outside
// the allowed alphanumeric/underscore set.
func invalidNameCharPos(name string) (int, bool) {
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '_':
		default:
			return i, true
		}
	}
	return 0, false
}
