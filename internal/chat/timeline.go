package chat

import (
	"time"

	"github.com/AleksandrVishniakov/versta-2024/internal/domain"
)

// Entry is one row of a rendered conversation: a message, or a day marker
// placed before the first message of a calendar day.
type Entry struct {
	Day     time.Time // midnight of the day in the timeline's location
	Message *domain.Message
}

func (e Entry) IsDayMarker() bool {
	return e.Message == nil
}

// Timeline interleaves messages with a marker for every calendar day they
// span, in loc (time.Local when nil). Messages keep their input order.
func Timeline(messages []domain.Message, loc *time.Location) []Entry {
	if loc == nil {
		loc = time.Local
	}

	entries := make([]Entry, 0, len(messages)+1)
	var last time.Time
	for i := range messages {
		day := startOfDay(messages[i].CreatedAt.In(loc))
		if i == 0 || !day.Equal(last) {
			entries = append(entries, Entry{Day: day})
			last = day
		}
		entries = append(entries, Entry{Day: day, Message: &messages[i]})
	}
	return entries
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
