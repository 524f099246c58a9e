// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"", LevelInfo, false},
		{"INFO", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"loud", LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestJSONLoggerComponentAndError(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Output: &buf, Level: LevelInfo, JSON: true})

	l.WithComponent("linkctl").WithError(errors.New("boom")).Error("block failed", "link", "s1-s2")
	l.Debug("hidden")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "block failed", rec["msg"])
	assert.Equal(t, "linkctl", rec["component"])
	assert.Equal(t, "boom", rec["error"])
	assert.Equal(t, "s1-s2", rec["link"])
}

func TestWithNilError(t *testing.T) {
	l := Nop()
	assert.Same(t, l, l.WithError(nil))
}

func TestFileFanout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "sdnlink.log")
	var console bytes.Buffer
	l := New(Config{Output: &console, Level: LevelDebug, File: path})
	l.Info("switch connected", "switch", 1)
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "switch connected")
	assert.Contains(t, console.String(), "switch connected")
}

func TestSetDefault(t *testing.T) {
	prev := Default()
	defer SetDefault(prev)

	var buf bytes.Buffer
	SetDefault(New(Config{Output: &buf, JSON: true}))
	WithComponent("api").Info("listening")
	Warn("careful")

	out := buf.String()
	assert.Contains(t, out, `"component":"api"`)
	assert.Contains(t, out, "careful")
}
