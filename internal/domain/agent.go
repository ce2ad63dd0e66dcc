package domain

import "time"

// Agent is a company user who may be routed tickets. IsAgent and IsAdmin are
// set once when the account is created.
type Agent struct {
	ID        string
	CompanyID string
	Name      string
	Email     string
	Roles     []string
	IsAgent   bool
	IsAdmin   bool
	IsActive  bool
	LeaveFrom *time.Time
	LeaveTo   *time.Time
	Holidays  []time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Day truncates t to its calendar date as seen in t's own location, returned
// as UTC midnight. Stored leave and holiday dates are UTC midnights already,
// so reference times should carry the business location.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// OnLeave reports whether date falls within the inclusive leave window.
// An open-ended window (only one bound set) covers everything on that side.
func (a *Agent) OnLeave(date time.Time) bool {
	if a.LeaveFrom == nil && a.LeaveTo == nil {
		return false
	}
	day := Day(date)
	if a.LeaveFrom != nil && day.Before(Day(*a.LeaveFrom)) {
		return false
	}
	if a.LeaveTo != nil && day.After(Day(*a.LeaveTo)) {
		return false
	}
	return true
}

// OnHoliday reports whether date is one of the agent's holidays.
func (a *Agent) OnHoliday(date time.Time) bool {
	day := Day(date)
	for _, h := range a.Holidays {
		if Day(h).Equal(day) {
			return true
		}
	}
	return false
}

// AvailableOn is isActive ∧ date ∉ [leaveFrom, leaveTo] ∧ date ∉ holidays.
func (a *Agent) AvailableOn(date time.Time) bool {
	if a == nil || !a.IsActive {
		return false
	}
	return !a.OnLeave(date) && !a.OnHoliday(date)
}
