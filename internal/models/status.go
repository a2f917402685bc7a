package models

import "time"

// AccountStatus is the parsed account/status snapshot.
// Nil fields mean unknown or unlimited, never zero.
type AccountStatus struct {
	Username         string   `json:"username"`
	UsedTraffic      *int64   `json:"used_traffic"`
	DataLimit        *int64   `json:"data_limit"`
	ExpireAt         *int64   `json:"expire"`
	StatusLabel      *string  `json:"status"`
	AccessLinks      []string `json:"links"`
	UpdateRequired   *bool    `json:"need_to_update"`
	UpdateIsOptional *bool    `json:"is_ignoreable"`
	UpdateLink       *string  `json:"update_link"`
}

// UpdatePrompt says how the UI should present an update.
type UpdatePrompt int

const (
	UpdateNone UpdatePrompt = iota
	UpdateOptional
	UpdateForced
)

func (p UpdatePrompt) String() string {
	switch p {
	case UpdateOptional:
		return "optional"
	case UpdateForced:
		return "forced"
	default:
		return "none"
	}
}

// UpdatePrompt evaluates need_to_update and is_ignoreable.
// is_ignoreable=true means the dialog may be dismissed; false or missing blocks the user.
func (s *AccountStatus) UpdatePrompt() UpdatePrompt {
	if s == nil || s.UpdateRequired == nil || !*s.UpdateRequired {
		return UpdateNone
	}
	if s.UpdateIsOptional != nil && *s.UpdateIsOptional {
		return UpdateOptional
	}
	return UpdateForced
}

// RemainingTraffic returns limit minus used. ok is false when the plan is unlimited.
func (s *AccountStatus) RemainingTraffic() (remaining int64, ok bool) {
	if s == nil || s.DataLimit == nil {
		return 0, false
	}
	var used int64
	if s.UsedTraffic != nil {
		used = *s.UsedTraffic
	}
	return max(*s.DataLimit-used, 0), true
}

// Expiry returns the expiry time. ok is false when the account never expires.
func (s *AccountStatus) Expiry() (t time.Time, ok bool) {
	if s == nil || s.ExpireAt == nil || *s.ExpireAt <= 0 {
		return time.Time{}, false
	}
	return time.Unix(*s.ExpireAt, 0), true
}
