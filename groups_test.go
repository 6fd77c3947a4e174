package chatflow

import (
	"reflect"
	"testing"
	"time"
)

func msgAt(id string, ts time.Time) Message {
	return Message{ID: id, Content: "m" + id, Timestamp: ts, Status: StatusSeen}
}

func TestGroupByDay(t *testing.T) {
	now := time.Date(2026, 8, 30, 15, 0, 0, 0, time.UTC)

	t.Run("labels", func(t *testing.T) {
		msgs := []Message{
			msgAt("1", now.AddDate(0, 0, -3)),
			msgAt("2", now.AddDate(0, 0, -1)),
			msgAt("3", now.Add(-2*time.Hour)),
		}
		groups := GroupByDay(msgs, now)
		if len(groups) != 3 {
			t.Fatalf("expected 3 groups, got %d", len(groups))
		}
		if groups[0].Label != "27 Aug 2026" {
			t.Fatalf("unexpected absolute label %q", groups[0].Label)
		}
		if groups[1].Label != "Yesterday" {
			t.Fatalf("expected Yesterday, got %q", groups[1].Label)
		}
		if groups[2].Label != "Today" {
			t.Fatalf("expected Today, got %q", groups[2].Label)
		}
	})

	t.Run("ascending groups and messages", func(t *testing.T) {
		msgs := []Message{
			msgAt("1", now.Add(-1*time.Hour)),
			msgAt("2", now.AddDate(0, 0, -1)),
			msgAt("3", now.Add(-5*time.Hour)),
			msgAt("4", now.AddDate(0, 0, -1).Add(2 * time.Hour)),
		}
		groups := GroupByDay(msgs, now)
		if len(groups) != 2 {
			t.Fatalf("expected 2 groups, got %d", len(groups))
		}
		for i := 1; i < len(groups); i++ {
			if !groups[i-1].Date.Before(groups[i].Date) {
				t.Fatal("groups not ascending by date")
			}
		}
		for _, g := range groups {
			for i := 1; i < len(g.Messages); i++ {
				if g.Messages[i].Timestamp.Before(g.Messages[i-1].Timestamp) {
					t.Fatalf("messages not ascending in group %s", g.Label)
				}
			}
		}
	})

	t.Run("each message lands in exactly one group", func(t *testing.T) {
		msgs := []Message{
			msgAt("1", now),
			msgAt("2", now.AddDate(0, 0, -1)),
			msgAt("3", now.AddDate(0, 0, -2)),
		}
		groups := GroupByDay(msgs, now)
		total := 0
		for _, g := range groups {
			total += len(g.Messages)
		}
		if total != len(msgs) {
			t.Fatalf("expected %d messages across groups, got %d", len(msgs), total)
		}
	})

	t.Run("stable under regroup of flattened output", func(t *testing.T) {
		msgs := []Message{
			msgAt("3", now.Add(-5*time.Hour)),
			msgAt("1", now.AddDate(0, 0, -2)),
			msgAt("2", now.AddDate(0, 0, -1)),
			msgAt("4", now.Add(-1*time.Hour)),
		}
		once := GroupByDay(msgs, now)
		twice := GroupByDay(FlattenGroups(once), now)
		if !reflect.DeepEqual(once, twice) {
			t.Fatal("regrouping flattened groups changed the result")
		}
	})

	t.Run("does not mutate input", func(t *testing.T) {
		msgs := []Message{
			msgAt("2", now),
			msgAt("1", now.Add(-time.Hour)),
		}
		snapshot := make([]Message, len(msgs))
		copy(snapshot, msgs)
		GroupByDay(msgs, now)
		if !reflect.DeepEqual(msgs, snapshot) {
			t.Fatal("input slice was mutated")
		}
	})

	t.Run("empty input", func(t *testing.T) {
		if groups := GroupByDay(nil, now); groups != nil {
			t.Fatalf("expected nil, got %v", groups)
		}
	})
}
