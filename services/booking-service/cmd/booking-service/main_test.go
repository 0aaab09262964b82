package main

import (
	"strings"
	"testing"
	"time"
)

func TestLoadSettingsDefaultsCoverWorstCaseTurn(t *testing.T) {
	t.Setenv("MODEL_TIMEOUT", "10s")
	s, err := loadSettings()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if want := 6*3*10*time.Second + 30*time.Second; s.requestTimeout != want {
		t.Fatalf("request timeout = %s, want %s", s.requestTimeout, want)
	}
}

func TestLoadSettingsRejectsShortLimits(t *testing.T) {
	t.Setenv("HISTORY_WINDOW", "6")
	if _, err := loadSettings(); err == nil || !strings.Contains(err.Error(), "HISTORY_WINDOW") {
		t.Fatalf("expected history window error, got %v", err)
	}

	t.Setenv("HISTORY_WINDOW", "40")
	t.Setenv("HTTP_REQUEST_TIMEOUT", "90s")
	if _, err := loadSettings(); err == nil || !strings.Contains(err.Error(), "HTTP_REQUEST_TIMEOUT") {
		t.Fatalf("expected request timeout error, got %v", err)
	}
}
