// Package visitors stores individual visitor detections for the list and
// detail views.
package visitors

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"visitorinsights/internal/analytics"
	"visitorinsights/internal/displayforce"
)

// Record is one stored visitor detection.
type Record struct {
	ID         uint           `gorm:"primaryKey" json:"-"`
	VisitorID  string         `gorm:"size:191;not null;uniqueIndex" json:"visitor_id"`
	Timestamp  *time.Time     `gorm:"index" json:"timestamp"`
	StoreID    string         `gorm:"size:191;index" json:"store_id"`
	StoreName  string         `json:"store_name"`
	Gender     string         `gorm:"size:1" json:"gender"`
	Age        float64        `json:"age"`
	DayOfWeek  string         `gorm:"size:8" json:"day_of_week"`
	Smile      bool           `json:"smile"`
	Attributes datatypes.JSON `json:"attributes,omitempty"`
	CreatedAt  time.Time      `json:"-"`

	// Alias is a display name derived from VisitorID, filled on listing.
	Alias string `gorm:"-" json:"alias,omitempty"`
}

func (Record) TableName() string { return "visitor_records" }

// FromEvent derives a Record from an API event. Events without any
// identifier get a stable synthetic id so that repeated refreshes still
// deduplicate.
func FromEvent(v displayforce.Visitor) Record {
	rec := Record{
		VisitorID: v.Identifier(),
		StoreID:   v.DeviceID(),
		StoreName: v.StoreName.String(),
		Gender:    v.Gender(),
		Age:       v.AgeYears(),
		Smile:     v.Smiled(),
	}
	if rec.VisitorID == "" {
		rec.VisitorID = FallbackID(v)
	}

	if ts, ok := v.Timestamp(); ok {
		rec.Timestamp = &ts
		rec.DayOfWeek = analytics.WeekdayLabel(ts)
	}

	if attrs := rawAttributes(v.Raw); attrs != nil {
		rec.Attributes = attrs
	}
	return rec
}

// FromEvents maps FromEvent over a slice.
func FromEvents(events []displayforce.Visitor) []Record {
	records := make([]Record, 0, len(events))
	for _, v := range events {
		records = append(records, FromEvent(v))
	}
	return records
}

// rawAttributes extracts the additional_attributes object of the raw event.
func rawAttributes(raw json.RawMessage) datatypes.JSON {
	if len(raw) == 0 {
		return nil
	}
	var envelope struct {
		AdditionalAttributes json.RawMessage `json:"additional_attributes"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil
	}
	attrs := envelope.AdditionalAttributes
	if len(attrs) == 0 || string(attrs) == "null" {
		return nil
	}
	return datatypes.JSON(attrs)
}
