package commands

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmemory/memctl/internal/config"
	"github.com/agentmemory/memctl/internal/output"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadEventFileJSON(t *testing.T) {
	path := writeTempFile(t, "event.json", `{
		"session_id": "session-123",
		"channel": "private",
		"actor": {"type": "human", "id": "user-456"},
		"kind": "message",
		"content": {"text": "Hello!"},
		"tags": ["greeting"]
	}`)

	event, err := loadEventFile(path)
	require.NoError(t, err)
	assert.Equal(t, "session-123", event.SessionID)
	assert.Equal(t, "private", event.Channel)
	assert.Equal(t, "human", event.Actor.Type)
	assert.Equal(t, "user-456", event.Actor.ID)
	assert.JSONEq(t, `{"text": "Hello!"}`, string(event.Content))
	assert.Equal(t, []string{"greeting"}, event.Tags)
}

func TestLoadEventFileYAML(t *testing.T) {
	path := writeTempFile(t, "event.yaml", `
session_id: session-123
channel: private
actor:
  type: agent
  id: agent-9
kind: message
content:
  text: from yaml
tags:
  - a
  - b
`)

	event, err := loadEventFile(path)
	require.NoError(t, err)
	assert.Equal(t, "session-123", event.SessionID)
	assert.Equal(t, "agent", event.Actor.Type)
	assert.JSONEq(t, `{"text": "from yaml"}`, string(event.Content))
	assert.Equal(t, []string{"a", "b"}, event.Tags)
}

func TestLoadEventFileInvalid(t *testing.T) {
	path := writeTempFile(t, "bad.json", `{"session_id": `)
	_, err := loadEventFile(path)
	require.Error(t, err)
	assert.Equal(t, output.CodeUsage, output.AsError(err).Code)

	_, err = loadEventFile(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestParseConfigValue(t *testing.T) {
	tests := []struct {
		key, raw string
		want     any
		wantErr  bool
	}{
		{"base_url", "localhost:3000", "http://localhost:3000", false},
		{"base_url", "memory.example.com", "https://memory.example.com", false},
		{"tenant_id", "acme", "acme", false},
		{"format", "json", "json", false},
		{"format", "xml", nil, true},
		{"stats", "true", true, false},
		{"stats", "yes please", nil, true},
		{"verbose", "2", 2, false},
		{"verbose", "9", nil, true},
		{"nope", "x", nil, true},
	}

	for _, tt := range tests {
		got, err := parseConfigValue(tt.key, tt.raw)
		if tt.wantErr {
			assert.Error(t, err, "%s=%s", tt.key, tt.raw)
			continue
		}
		require.NoError(t, err, "%s=%s", tt.key, tt.raw)
		assert.Equal(t, tt.want, got, "%s=%s", tt.key, tt.raw)
	}
}

func TestConfigValueCoversAllKeys(t *testing.T) {
	cfg := config.Default()
	for _, key := range configKeys {
		_, ok := configValue(cfg, key)
		assert.True(t, ok, "key %q unreadable", key)
	}
	_, ok := configValue(cfg, "bogus")
	assert.False(t, ok)
}

func TestApplyJQ(t *testing.T) {
	input := map[string]any{
		"sessions": []any{
			map[string]any{"session_id": "s1", "is_active": true},
			map[string]any{"session_id": "s2", "is_active": false},
		},
	}

	results, err := applyJQ(".sessions[].session_id", input)
	require.NoError(t, err)
	assert.Equal(t, []any{"s1", "s2"}, results)

	results, err = applyJQ("[.sessions[] | select(.is_active)] | length", input)
	require.NoError(t, err)
	assert.Equal(t, []any{1}, results)

	_, err = applyJQ(".sessions[", input)
	require.Error(t, err)
	assert.Equal(t, output.CodeUsage, output.AsError(err).Code)
}
