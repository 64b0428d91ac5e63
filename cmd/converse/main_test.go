package main

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	opts, err := parseFlags(nil, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "converse.log", opts.logFile)
	assert.False(t, opts.pretty)

	opts, err = parseFlags([]string{"-pretty", "-model", "gpt-4", "-prompt", "hi", "-verbose"}, io.Discard)
	require.NoError(t, err)
	assert.Empty(t, opts.logFile)
	assert.True(t, opts.pretty)
	assert.Equal(t, "gpt-4", opts.model)
	assert.Equal(t, "hi", opts.prompt)
	assert.True(t, opts.verbose)
}

func TestParseFlagsErrors(t *testing.T) {
	_, err := parseFlags([]string{"-logfile", "x.log", "-pretty"}, io.Discard)
	require.ErrorIs(t, err, errUsage)

	_, err = parseFlags([]string{"-no-such-flag"}, io.Discard)
	require.ErrorIs(t, err, errUsage)
}
