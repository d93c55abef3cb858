package bot

import (
	"testing"

	"WaPulse/internal/model"
)

func TestMatchTrigger(t *testing.T) {
	cases := []struct {
		name          string
		body          string
		trigger       string
		mode          model.MatchMode
		caseSensitive bool
		want          bool
	}{
		{"includes ignore case hits greeting", "Hi there!", "hi", model.MatchModeIncludes, false, true},
		{"exact match case misses greeting", "Hi there!", "hi", model.MatchModeExact, true, false},
		{"exact equal", "hello", "hello", model.MatchModeExact, true, true},
		{"exact case sensitive", "Hello", "hello", model.MatchModeExact, true, false},
		{"exact case insensitive", "Hello", "hello", model.MatchModeExact, false, true},
		{"includes contiguous sequence", "well good morning friend", "good morning", model.MatchModeIncludes, false, true},
		{"includes wrong order", "morning good everyone", "good morning", model.MatchModeIncludes, false, false},
		{"includes punctuation trimmed", "thanks, good morning!", "good morning", model.MatchModeIncludes, false, true},
		{"anywhere any order", "morning is ok today", "ok morning", model.MatchModeAnywhere, false, true},
		{"anywhere missing word", "morning is fine", "ok morning", model.MatchModeAnywhere, false, false},
		{"anywhere case sensitive miss", "OK morning", "ok morning", model.MatchModeAnywhere, true, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := MatchTrigger(tc.body, tc.trigger, tc.mode, tc.caseSensitive)
			if got != tc.want {
				t.Fatalf("MatchTrigger(%q, %q, %s, %v) = %v, want %v",
					tc.body, tc.trigger, tc.mode, tc.caseSensitive, got, tc.want)
			}
		})
	}
}

func TestMatchAnyEmptyTriggersAlwaysMatches(t *testing.T) {
	if !matchAny("anything at all", nil, model.MatchModeExact, true) {
		t.Fatal("empty trigger list must match unconditionally")
	}
}

func TestMatchAnyFirstHitWins(t *testing.T) {
	triggers := []string{"price", "catalog"}
	if !matchAny("send me the catalog please", triggers, model.MatchModeIncludes, false) {
		t.Fatal("expected second trigger to hit")
	}
	if matchAny("send me something else", triggers, model.MatchModeIncludes, false) {
		t.Fatal("expected no trigger to hit")
	}
}
