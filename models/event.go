package models

import (
	"time"
)

// Event represents a stored gift card event in the database
type Event struct {
	Position    int64      `gorm:"primaryKey;autoIncrement" json:"position"`
	EventID     string     `gorm:"type:uuid;uniqueIndex" json:"event_id"`
	StreamID    string     `gorm:"type:uuid;not null;uniqueIndex:idx_gift_card_events_stream_sequence,priority:1" json:"stream_id"`
	Sequence    int64      `gorm:"not null;uniqueIndex:idx_gift_card_events_stream_sequence,priority:2" json:"sequence"`
	EventType   string     `gorm:"not null" json:"event_type"`
	Payload     []byte     `gorm:"type:jsonb;not null" json:"payload"`
	RecordedOn  time.Time  `gorm:"not null" json:"recorded_on"`
	Published   bool       `gorm:"index;not null;default:false" json:"published"`
	PublishedAt *time.Time `json:"published_at"`
}

func (Event) TableName() string {
	return "gift_card_events"
}
