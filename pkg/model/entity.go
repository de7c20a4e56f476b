// Package model holds the Redmine records exchanged with the server and the
// entity-kind descriptors that tie each record type to its collection URL and
// page container.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Entity is implemented by every top-level Redmine record.
type Entity interface {
	GetID() int64
	SetID(id int64)

	// Validate returns human-readable defects; empty means valid.
	Validate() []string
}

// Ref is a reference to another record as Redmine embeds it,
// e.g. <project id="1" name="Connector"/>.
type Ref struct {
	ID   int64  `xml:"id,attr"`
	Name string `xml:"name,attr,omitempty"`
}

// NewRef returns a reference carrying only an id.
func NewRef(id int64) *Ref {
	return &Ref{ID: id}
}

func (r *Ref) validate(label string, errs []string) []string {
	if r.ID == 0 {
		errs = append(errs, fmt.Sprintf("%s Id is null", label))
	}
	return errs
}

// Well-known ids of a stock Redmine installation.
var (
	StatusNew        = Ref{ID: 1, Name: "New"}
	StatusInProgress = Ref{ID: 2, Name: "In Progress"}
	StatusResolved   = Ref{ID: 3, Name: "Resolved"}
	StatusFeedback   = Ref{ID: 4, Name: "Feedback"}
	StatusClosed     = Ref{ID: 5, Name: "Closed"}
	StatusRejected   = Ref{ID: 6, Name: "Rejected"}
	StatusObsolete   = Ref{ID: 7, Name: "Obsolete"}

	TrackerBug     = Ref{ID: 1, Name: "Bug"}
	TrackerFeature = Ref{ID: 2, Name: "Feature"}
	TrackerSupport = Ref{ID: 3, Name: "Support"}

	PriorityLow       = Ref{ID: 3, Name: "Low"}
	PriorityNormal    = Ref{ID: 4, Name: "Normal"}
	PriorityHigh      = Ref{ID: 5, Name: "High"}
	PriorityUrgent    = Ref{ID: 6, Name: "Urgent"}
	PriorityImmediate = Ref{ID: 7, Name: "Immediate"}
)

// Layouts Redmine has used for dates and timestamps across versions.
var timeLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"Mon Jan 02 15:04:05 -0700 2006",
	"2006/01/02 15:04:05 -0700",
}

func parseTime(text []byte) (time.Time, error) {
	s := strings.TrimSpace(string(text))
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

// Date is a calendar date such as start_date. It marshals as 2006-01-02.
type Date struct {
	time.Time
}

// NewDate returns a Date for the given day.
func NewDate(year int, month time.Month, day int) *Date {
	return &Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Date) UnmarshalText(text []byte) error {
	t, err := parseTime(text)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Date) MarshalText() ([]byte, error) {
	if d.IsZero() {
		return nil, nil
	}
	return []byte(d.Format("2006-01-02")), nil
}

// Timestamp is a point in time such as created_on. It marshals as RFC 3339.
type Timestamp struct {
	time.Time
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Timestamp) UnmarshalText(text []byte) error {
	parsed, err := parseTime(text)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (t Timestamp) MarshalText() ([]byte, error) {
	if t.IsZero() {
		return nil, nil
	}
	return []byte(t.Format(time.RFC3339)), nil
}
