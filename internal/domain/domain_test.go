package domain

import (
	"testing"
	"time"
)

var testTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestParseTopic(t *testing.T) {
	tests := []struct {
		in      string
		want    Topic
		wantErr bool
	}{
		{"Food", TopicFood, false},
		{"food", TopicFood, false},
		{"  TECHNOLOGY ", TopicTechnology, false},
		{"Cooking", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseTopic(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseTopic(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseTopic(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTopicsOrder(t *testing.T) {
	if len(Topics) != 10 {
		t.Fatalf("expected 10 topics, got %d", len(Topics))
	}
	if Topics[0] != TopicEducation || Topics[9] != TopicSports {
		t.Errorf("unexpected order: %v", Topics)
	}
}

func TestPhaseNext(t *testing.T) {
	if p, ok := Part1.Next(); !ok || p != Part2 {
		t.Errorf("Part1.Next() = %v, %v", p, ok)
	}
	if p, ok := Part2.Next(); !ok || p != Part3 {
		t.Errorf("Part2.Next() = %v, %v", p, ok)
	}
	if p, ok := Part3.Next(); ok || p != Part3 {
		t.Errorf("Part3.Next() = %v, %v", p, ok)
	}
	if Phase(0).Valid() || Phase(4).Valid() {
		t.Error("out-of-range phases reported valid")
	}
}

func TestSessionCloneDoesNotAlias(t *testing.T) {
	s := NewExamSession("k", testTime)
	s.History.Append(Turn{Role: RoleExaminer, Text: "hello"})

	c := s.Clone()
	c.History.Append(Turn{Role: RoleCandidate, Text: "hi"})
	c.History[0].Text = "changed"

	if s.History.Len() != 1 || s.History[0].Text != "hello" {
		t.Errorf("original mutated: %+v", s.History)
	}
}

func TestHistoryClear(t *testing.T) {
	var h History
	h.Append(Turn{Role: RoleExaminer, Text: "q"}, Turn{Role: RoleCandidate, Text: "a"})
	if h.Len() != 2 {
		t.Fatalf("Len = %d, want 2", h.Len())
	}
	h.Clear()
	if h.Len() != 0 {
		t.Errorf("Len after Clear = %d", h.Len())
	}
}
