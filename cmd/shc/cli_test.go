package main

import "testing"

func TestParseFileIDs(t *testing.T) {
	ids, err := parseFileIDs([]string{"1", "42", "7"})
	if err != nil {
		t.Fatalf("parseFileIDs failed: %v", err)
	}
	if len(ids) != 3 || ids[0] != 1 || ids[1] != 42 || ids[2] != 7 {
		t.Errorf("Wrong ids: %v", ids)
	}

	if _, err := parseFileIDs([]string{"1", "abc"}); err == nil {
		t.Error("Non-numeric id should be rejected")
	}
}

func TestShortKey(t *testing.T) {
	if got := shortKey("abcdef"); got != "abcdef" {
		t.Errorf("Short keys pass through, got %q", got)
	}
	if got := shortKey("0123456789abcdef"); got != "0123456789ab" {
		t.Errorf("Long keys truncate to 12, got %q", got)
	}
}
