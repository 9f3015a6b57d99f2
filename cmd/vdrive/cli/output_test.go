// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNewLoggerFormats(t *testing.T) {
	tests := []struct {
		name     string
		format   string
		terminal bool
		wantJSON bool
	}{
		{"json", "json", true, true},
		{"text", "text", false, false},
		{"auto on terminal", "auto", true, false},
		{"auto when piped", "auto", false, true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var buffer bytes.Buffer
			logger := newLogger(&buffer, slog.LevelInfo, test.format, test.terminal)
			logger.Info("drive opened", "path", "a.vd")

			isJSON := json.Valid(bytes.TrimSpace(buffer.Bytes()))
			if isJSON != test.wantJSON {
				t.Errorf("output %q: JSON = %v, want %v", buffer.String(), isJSON, test.wantJSON)
			}
		})
	}
}

func TestNewLoggerLevel(t *testing.T) {
	var buffer bytes.Buffer
	logger := newLogger(&buffer, slog.LevelWarn, "text", false)
	logger.Info("hidden")
	logger.Warn("shown")
	if strings.Contains(buffer.String(), "hidden") {
		t.Error("info message written at warn level")
	}
	if !strings.Contains(buffer.String(), "shown") {
		t.Error("warn message missing")
	}
}

func TestProgressBarDisabled(t *testing.T) {
	var buffer bytes.Buffer
	bar := newProgressBar(&buffer, false, "copy", 0)
	if bar.Report() != nil {
		t.Error("disabled bar returned a progress callback")
	}
	bar.Done()
	if buffer.Len() != 0 {
		t.Errorf("disabled bar wrote %q", buffer.String())
	}
}

func TestProgressBarDraws(t *testing.T) {
	var buffer bytes.Buffer
	bar := newProgressBar(&buffer, true, "put", 2<<20)
	report := bar.Report()
	if report == nil {
		t.Fatal("enabled bar returned no callback")
	}
	report(50)
	report(100)
	output := buffer.String()
	for _, want := range []string{"put", "100.0%", "2.0 MiB / 2.0 MiB"} {
		if !strings.Contains(output, want) {
			t.Errorf("progress output %q missing %q", output, want)
		}
	}

	buffer.Reset()
	bar.Done()
	if !strings.HasPrefix(buffer.String(), "\r") {
		t.Errorf("Done wrote %q, want a line clear", buffer.String())
	}
}

func TestStylesPlainWhenPiped(t *testing.T) {
	var buffer bytes.Buffer
	styles := NewStyles(&buffer)
	if got := styles.Directory.Render("photos"); got != "photos" {
		t.Errorf("Directory.Render = %q, want plain text off a terminal", got)
	}
}
