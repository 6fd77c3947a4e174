package chatflow

import (
	"sort"
	"time"
)

// DayGroup is a display bucket of messages sharing one calendar date.
type DayGroup struct {
	// Date is midnight of the bucket's day in the reference location.
	Date time.Time
	// Label is "Today", "Yesterday", or an absolute date like "02 Jan 2006".
	Label    string
	Messages []Message
}

// Key returns the bucket's date key, e.g. "2006-01-02".
func (g DayGroup) Key() string {
	return g.Date.Format("2006-01-02")
}

// GroupByDay buckets messages by calendar day relative to now's location,
// producing groups in ascending date order with messages ascending by
// timestamp inside each group. Pure: the input slice is not mutated, and
// regrouping the flattened output reproduces the same grouping.
func GroupByDay(msgs []Message, now time.Time) []DayGroup {
	if len(msgs) == 0 {
		return nil
	}
	loc := now.Location()

	sorted := make([]Message, len(msgs))
	copy(sorted, msgs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	var groups []DayGroup
	byDay := make(map[string]int)
	for _, msg := range sorted {
		day := startOfDay(msg.Timestamp.In(loc))
		key := day.Format("2006-01-02")
		idx, ok := byDay[key]
		if !ok {
			idx = len(groups)
			byDay[key] = idx
			groups = append(groups, DayGroup{
				Date:  day,
				Label: dayLabel(day, now),
			})
		}
		groups[idx].Messages = append(groups[idx].Messages, msg)
	}

	// Messages were appended in global ascending order, so groups are already
	// ascending by date.
	return groups
}

// FlattenGroups concatenates group messages back into one ascending list.
func FlattenGroups(groups []DayGroup) []Message {
	var out []Message
	for _, g := range groups {
		out = append(out, g.Messages...)
	}
	return out
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func dayLabel(day, now time.Time) string {
	today := startOfDay(now)
	switch {
	case day.Equal(today):
		return "Today"
	case day.Equal(today.AddDate(0, 0, -1)):
		return "Yesterday"
	default:
		return day.Format("02 Jan 2006")
	}
}
