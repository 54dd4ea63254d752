package model

import "time"

type FormType string

const (
	FormContact       FormType = "contact"
	FormQuickInquiry  FormType = "quickInquiry"
	FormSiteVisit     FormType = "siteVisit"
	FormEMICalculator FormType = "emiCalculator"
	FormNewsletter    FormType = "newsletter"
)

var FormTypes = []FormType{
	FormContact,
	FormQuickInquiry,
	FormSiteVisit,
	FormEMICalculator,
	FormNewsletter,
}

func (t FormType) Valid() bool {
	for _, known := range FormTypes {
		if t == known {
			return true
		}
	}
	return false
}

// TimestampLayout is the ISO-8601 layout used for every persisted timestamp.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

type FormSubmission struct {
	ID        string         `json:"id"`
	FormType  FormType       `json:"formType"`
	Timestamp string         `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

type Stats struct {
	Total  int              `json:"total"`
	ByType map[FormType]int `json:"byType"`
	Recent []FormSubmission `json:"recent"`
}

type VisitCounter struct {
	TotalVisits     int     `json:"totalVisits"`
	DailyVisits     int     `json:"dailyVisits"`
	LastResetDate   string  `json:"lastResetDate"`
	LastResetBy     *string `json:"lastResetBy,omitempty"`
	LastResetReason *string `json:"lastResetReason,omitempty"`
	CreatedAt       string  `json:"createdAt"`
	UpdatedAt       string  `json:"updatedAt"`
}

// Clone returns a copy that shares no pointers with c.
func (c VisitCounter) Clone() VisitCounter {
	out := c
	if c.LastResetBy != nil {
		by := *c.LastResetBy
		out.LastResetBy = &by
	}
	if c.LastResetReason != nil {
		reason := *c.LastResetReason
		out.LastResetReason = &reason
	}
	return out
}

type SubmitRequest struct {
	FormType FormType       `json:"formType"`
	Data     map[string]any `json:"data"`
}

type ResetRequest struct {
	ResetTo *int   `json:"resetTo,omitempty"`
	Reason  string `json:"reason,omitempty"`
}
