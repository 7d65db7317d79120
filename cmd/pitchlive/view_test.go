package main

import (
	"strings"
	"testing"
	"time"

	"github.com/koscakluka/pitchlive/core/transcript"
)

func TestFormatting(t *testing.T) {
	if got := formatMoney(500000); got != "$500,000" {
		t.Fatalf("expected $500,000, got %s", got)
	}
	if got := formatMoney(950); got != "$950" {
		t.Fatalf("expected $950, got %s", got)
	}
	if got := formatClock(90 * time.Second); got != "1:30" {
		t.Fatalf("expected 1:30, got %s", got)
	}
}

func TestRenderTranscriptLabelsSpeakers(t *testing.T) {
	out := renderTranscript([]transcript.Turn{
		{Speaker: transcript.SpeakerUser, Text: "We help founders practice."},
		{Speaker: transcript.SpeakerAgent, Text: "Tell me more"},
	}, 40)
	if !strings.Contains(out, "You") || !strings.Contains(out, "Investor") || !strings.Contains(out, "Tell me more") {
		t.Fatalf("unexpected transcript rendering %q", out)
	}
}
