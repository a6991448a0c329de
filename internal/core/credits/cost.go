package credits

import "strings"

// Action is the kind of billed work.
type Action string

const (
	ActionGenerate Action = "generate"
	ActionEdit     Action = "edit"
)

// ParseAction maps a request string to an Action.
func ParseAction(s string) (Action, bool) {
	switch Action(strings.ToLower(strings.TrimSpace(s))) {
	case ActionGenerate:
		return ActionGenerate, true
	case ActionEdit:
		return ActionEdit, true
	}
	return "", false
}

// ChargeRequest describes what a caller wants to be billed for.
type ChargeRequest struct {
	Action   Action
	Quantity int
	Quality  string
}

// Policy holds the credit prices. The handler and the pricing endpoint both
// read from the same Policy so previews match what is debited.
type Policy struct {
	PerImage    int64 `json:"per_image"`
	HDSurcharge int64 `json:"hd_surcharge_per_image"`
	EditPerUnit int64 `json:"edit_per_unit"`
}

// DefaultPolicy returns the standard price list.
func DefaultPolicy() Policy {
	return Policy{PerImage: 1, HDSurcharge: 1, EditPerUnit: 2}
}

// IsHighQuality reports whether a quality tier carries the HD surcharge.
func IsHighQuality(quality string) bool {
	switch strings.ToLower(strings.TrimSpace(quality)) {
	case "hd", "high":
		return true
	}
	return false
}

// Cost returns the credits a request costs. It never returns a negative value.
func (p Policy) Cost(req ChargeRequest) int64 {
	n := int64(req.Quantity)
	if n < 1 {
		n = 1
	}

	var cost int64
	switch req.Action {
	case ActionEdit:
		cost = p.EditPerUnit * n
	default:
		unit := p.PerImage
		if IsHighQuality(req.Quality) {
			unit += p.HDSurcharge
		}
		cost = unit * n
	}

	if cost < 0 {
		return 0
	}
	return cost
}
