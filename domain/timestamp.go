package domain

import (
	"bytes"
	"fmt"
	"time"
)

// TimestampLayout is ISO-8601 with microseconds and an explicit offset.
const TimestampLayout = "2006-01-02T15:04:05.000000-07:00"

// Timestamp is the instant carried by every event.
type Timestamp struct {
	time.Time
}

// NewTimestamp normalizes t to UTC microseconds so it survives a serialization round trip.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: Truncate(t)}
}

// Truncate drops precision below one microsecond and the monotonic reading.
func Truncate(t time.Time) time.Time {
	return t.Truncate(time.Microsecond).UTC()
}

func (t Timestamp) String() string {
	return t.Format(TimestampLayout)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.Format(TimestampLayout) + `"`), nil
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	parsed, err := time.Parse(TimestampLayout, string(data))
	if err != nil {
		// Accept RFC3339 with any fractional precision as well.
		parsed, err = time.Parse(time.RFC3339Nano, string(data))
		if err != nil {
			return fmt.Errorf("invalid timestamp %q: %w", data, err)
		}
	}
	t.Time = Truncate(parsed)
	return nil
}

func timePtr(t Timestamp) *time.Time {
	v := t.Time
	return &v
}
