package domain

import "time"

// Frequency is the recurrence period of a routinary service.
type Frequency string

const (
	FrequencyDaily     Frequency = "DAILY"
	FrequencyWeekly    Frequency = "WEEKLY"
	FrequencyBiweekly  Frequency = "BIWEEKLY"
	FrequencyMonthly   Frequency = "MONTHLY"
	FrequencyQuarterly Frequency = "QUARTERLY"
	FrequencyYearly    Frequency = "YEARLY"
)

// Next returns the run timestamp that follows from, according to the
// frequency. Unknown frequencies fall back to monthly.
func (f Frequency) Next(from time.Time) time.Time {
	switch f {
	case FrequencyDaily:
		return from.AddDate(0, 0, 1)
	case FrequencyWeekly:
		return from.AddDate(0, 0, 7)
	case FrequencyBiweekly:
		return from.AddDate(0, 0, 14)
	case FrequencyMonthly:
		return from.AddDate(0, 1, 0)
	case FrequencyQuarterly:
		return from.AddDate(0, 3, 0)
	case FrequencyYearly:
		return from.AddDate(1, 0, 0)
	}
	return from.AddDate(0, 1, 0)
}

// Service is a category tasks belong to. Routinary services act as templates
// that spawn a fresh task each period.
type Service struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	WorkspaceID     string     `json:"workspace_id"`
	IsPublic        bool       `json:"is_public"`
	IsRoutinary     bool       `json:"is_routinary"`
	Frequency       Frequency  `json:"frequency,omitempty"`
	NextRunDate     *time.Time `json:"next_run_date,omitempty"`
	SLADays         int        `json:"sla_days"`
	IncludeWeekends bool       `json:"include_weekends"`
}

// DueDateFrom computes the due date for a task spawned at start: SLADays
// calendar days later, or SLADays working days later when weekends are
// excluded from the SLA.
func (s *Service) DueDateFrom(start time.Time) time.Time {
	if s.IncludeWeekends {
		return start.AddDate(0, 0, s.SLADays)
	}
	due := start
	for added := 0; added < s.SLADays; {
		due = due.AddDate(0, 0, 1)
		if wd := due.Weekday(); wd != time.Saturday && wd != time.Sunday {
			added++
		}
	}
	return due
}
