package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmemory/memctl/internal/output"
)

func TestTransformCobraError(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantCode string
		wantMsg  string
	}{
		{
			name:     "missing flag argument",
			input:    "flag needs an argument: --session",
			wantCode: output.CodeUsage,
			wantMsg:  "--session requires a value",
		},
		{
			name:     "unknown flag",
			input:    "unknown flag: --bogus",
			wantCode: output.CodeUsage,
			wantMsg:  "Unknown option: --bogus",
		},
		{
			name:     "unknown shorthand flag",
			input:    "unknown shorthand flag: 'z' in -z",
			wantCode: output.CodeUsage,
			wantMsg:  "Unknown option: -z",
		},
		{
			name:     "wrong arg count",
			input:    "accepts 2 arg(s), received 0",
			wantCode: output.CodeUsage,
			wantMsg:  "accepts 2 arg(s), received 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := transformCobraError(assertableError(tt.input))
			apiErr, ok := err.(*output.Error)
			require.True(t, ok, "expected *output.Error")
			assert.Equal(t, tt.wantCode, apiErr.Code)
			assert.Equal(t, tt.wantMsg, apiErr.Message)
		})
	}
}

func TestTransformCobraErrorPassesThroughOthers(t *testing.T) {
	orig := output.ErrAuth("token refresh rejected")
	assert.Same(t, orig, transformCobraError(orig).(*output.Error))
}

func TestRootCommandTree(t *testing.T) {
	cmd := newCommandTree()

	names := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	for _, want := range []string{"auth", "events", "acb", "api", "config"} {
		assert.True(t, names[want], "missing subcommand %q", want)
	}
}

func TestRootPersistentFlags(t *testing.T) {
	cmd := NewRootCmd()
	pf := cmd.PersistentFlags()

	for _, name := range []string{"json", "quiet", "styled", "host", "tenant", "verbose", "stats"} {
		assert.NotNil(t, pf.Lookup(name), "missing persistent flag %q", name)
	}
}

type assertableError string

func (e assertableError) Error() string { return string(e) }
