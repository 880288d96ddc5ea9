package main

import (
	"testing"
	"time"

	"github.com/labstack/gommon/log"
)

func TestEnvDuration(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		want    time.Duration
		wantErr bool
	}{
		{name: "unset", value: "", want: time.Minute},
		{name: "valid", value: "30s", want: 30 * time.Second},
		{name: "zero disables", value: "0", want: 0},
		{name: "malformed", value: "every minute", wantErr: true},
		{name: "negative", value: "-5s", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("SKVD_TEST_INTERVAL", tt.value)
			got, err := envDuration("SKVD_TEST_INTERVAL", time.Minute)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("envDuration() = %v, want error", got)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("envDuration() = %v, %v; want %v", got, err, tt.want)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]log.Lvl{
		"debug": log.DEBUG,
		"WARN":  log.WARN,
		"error": log.ERROR,
		"":      log.INFO,
		"loud":  log.INFO,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
