// internal/machine/alarm.go
package machine

import (
	"math"
	"strings"
	"time"

	"fleetmaint/internal/domainerr"
)

const MaxAlarmTitleLength = 120

// MaintenanceAlarm tracks operating hours accumulated against a service interval.
type MaintenanceAlarm struct {
	ID               AlarmID    `json:"id"`
	Title            string     `json:"title"`
	Description      *string    `json:"description,omitempty"`
	RelatedParts     []string   `json:"related_parts"`
	IntervalHours    float64    `json:"interval_hours"`
	AccumulatedHours float64    `json:"accumulated_hours"`
	IsActive         bool       `json:"is_active"`
	TimesTriggered   int        `json:"times_triggered"`
	LastTriggeredAt  *time.Time `json:"last_triggered_at,omitempty"`
	CreatedBy        string     `json:"created_by"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (a MaintenanceAlarm) clone() MaintenanceAlarm {
	c := a
	if a.Description != nil {
		d := *a.Description
		c.Description = &d
	}
	if a.RelatedParts != nil {
		c.RelatedParts = append([]string{}, a.RelatedParts...)
	}
	if a.LastTriggeredAt != nil {
		t := *a.LastTriggeredAt
		c.LastTriggeredAt = &t
	}
	return c
}

// AlarmProps is the input for a new alarm. Counters are not part of it: a new
// alarm always starts with zero accumulated hours, active and never triggered.
type AlarmProps struct {
	Title         string
	Description   *string
	RelatedParts  []string
	IntervalHours float64
	CreatedBy     string
}

// Validate checks the props without building an alarm.
func (p AlarmProps) Validate() error {
	if err := validateTitle(p.Title); err != nil {
		return err
	}
	if err := validateInterval(p.IntervalHours); err != nil {
		return err
	}
	if strings.TrimSpace(p.CreatedBy) == "" {
		return domainerr.New(domainerr.CodeValidation, "alarm creator is required")
	}
	return nil
}

// AlarmPatch is a sparse update. Nil fields are left untouched.
type AlarmPatch struct {
	Title            *string
	Description      *string
	RelatedParts     *[]string
	IntervalHours    *float64
	AccumulatedHours *float64
	IsActive         *bool
}

func (p AlarmPatch) validate() error {
	if p.Title != nil {
		if err := validateTitle(*p.Title); err != nil {
			return err
		}
	}
	if p.IntervalHours != nil {
		if err := validateInterval(*p.IntervalHours); err != nil {
			return err
		}
	}
	if p.AccumulatedHours != nil {
		h := *p.AccumulatedHours
		if math.IsNaN(h) || math.IsInf(h, 0) || h < 0 {
			return domainerr.New(domainerr.CodeValidation, "accumulated hours cannot be negative")
		}
	}
	return nil
}

func (p AlarmPatch) apply(a *MaintenanceAlarm) {
	if p.Title != nil {
		a.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		a.Description = normalizeOptional(*p.Description)
	}
	if p.RelatedParts != nil {
		a.RelatedParts = normalizeParts(*p.RelatedParts)
	}
	if p.IntervalHours != nil {
		a.IntervalHours = *p.IntervalHours
	}
	if p.AccumulatedHours != nil {
		a.AccumulatedHours = *p.AccumulatedHours
	}
	if p.IsActive != nil {
		a.IsActive = *p.IsActive
	}
}

func validateTitle(title string) error {
	t := strings.TrimSpace(title)
	if t == "" {
		return domainerr.New(domainerr.CodeValidation, "alarm title is required")
	}
	if len([]rune(t)) > MaxAlarmTitleLength {
		return domainerr.Newf(domainerr.CodeValidation, "alarm title exceeds %d characters", MaxAlarmTitleLength)
	}
	return nil
}

func validateInterval(h float64) error {
	if math.IsNaN(h) || math.IsInf(h, 0) || h <= 0 {
		return domainerr.New(domainerr.CodeValidation, "interval hours must be greater than zero")
	}
	return nil
}

func normalizeOptional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func normalizeParts(parts []string) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
