package service

import "testing"

func TestChannelsFor(t *testing.T) {
	channels := channelsFor([]string{"form-a", "", "form-b", "form-a"})
	if len(channels) != 2 || channels[0] != "forms:form-a" || channels[1] != "forms:form-b" {
		t.Fatalf("unexpected channels %v", channels)
	}
	if got := channelsFor(nil); len(got) != 0 {
		t.Fatalf("expected no channels, got %v", got)
	}
}
