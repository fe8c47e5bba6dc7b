package moderation

// OpLookup answers operator-privilege queries for a name/token pair.
type OpLookup interface {
	IsOp(name, uuid string) bool
}

// Gate decides whether a restricted action from a player must be denied.
// Restricted actions are only gated while operator mode is active AND at
// least one operator is currently online; otherwise everyone may act.
type Gate struct {
	OpMode   bool
	Lists    OpLookup
	OpOnline func() bool
}

// Denied reports whether the acting player is blocked from a restricted
// action.
func (g *Gate) Denied(name, uuid string) bool {
	if g == nil || !g.OpMode {
		return false
	}
	if g.OpOnline == nil || !g.OpOnline() {
		return false
	}
	if g.Lists == nil {
		return true
	}
	return !g.Lists.IsOp(name, uuid)
}
