package config

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/aschepis/backscratcher/converse/mcp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const claudeJSON = `{
  "mcpServers": {
    "search": {"command": "search-server", "env": {"B": "2", "A": "1"}}
  },
  "projects": {
    "/work/app": {"mcpServers": {"db": {"command": "db-server", "args": ["--ro"]}}},
    "/work/app/sub": {"mcpServers": {"docs": {"url": "http://localhost:9000/mcp"}}},
    "/home/other": {"mcpServers": {"mail": {"command": "mail-server", "env": ["TOKEN=x"]}}}
  }
}`

func TestGetEnvAsStrings(t *testing.T) {
	tests := []struct {
		name string
		env  string
		want []string
	}{
		{"absent", "", nil},
		{"array", `["A=1","B=2"]`, []string{"A=1", "B=2"}},
		{"object", `{"B":"2","A":"1"}`, []string{"A=1", "B=2"}},
		{"invalid", `42`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := ClaudeMCPServer{Env: json.RawMessage(tt.env)}
			assert.Equal(t, tt.want, server.GetEnvAsStrings(zerolog.Nop()))
		})
	}
}

func TestLoadClaudeConfig(t *testing.T) {
	cfg, err := LoadClaudeConfig(zerolog.Nop(), filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Empty(t, cfg.Projects)
	assert.Empty(t, cfg.MCPServers)

	_, err = LoadClaudeConfig(zerolog.Nop(), writeFile(t, "bad.json", "{"))
	require.Error(t, err)

	cfg, err = LoadClaudeConfig(zerolog.Nop(), writeFile(t, "claude.json", claudeJSON))
	require.NoError(t, err)
	assert.Len(t, cfg.MCPServers, 1)
	assert.Len(t, cfg.Projects, 3)
}

func TestExtractMCPServersFromProjects(t *testing.T) {
	cfg, err := LoadClaudeConfig(zerolog.Nop(), writeFile(t, "claude.json", claudeJSON))
	require.NoError(t, err)

	all, contributed := ExtractMCPServersFromProjects(zerolog.Nop(), cfg, nil)
	assert.Len(t, all, 4)
	assert.Equal(t, []string{"search"}, contributed["Global"])

	scoped, contributed := ExtractMCPServersFromProjects(zerolog.Nop(), cfg, []string{"/work/app"})
	assert.Len(t, scoped, 2)
	assert.Contains(t, scoped, "db")
	assert.Contains(t, scoped, "docs")
	assert.NotContains(t, contributed, "Global")

	withGlobal, _ := ExtractMCPServersFromProjects(zerolog.Nop(), cfg, []string{"Global", "/home/other"})
	assert.Len(t, withGlobal, 2)
	assert.Contains(t, withGlobal, "search")
	assert.Contains(t, withGlobal, "mail")
}

func TestMCPServersMergesClaude(t *testing.T) {
	cfg := Defaults()
	cfg.Functions.MCPServers = map[string]mcp.ServerConfig{
		"claude_search": {Command: "my-search"},
	}

	assert.Equal(t, cfg.Functions.MCPServers, cfg.MCPServers(zerolog.Nop()), "Claude servers are ignored unless enabled")

	cfg.Functions.ClaudeMCP.Enabled = true
	cfg.Functions.ClaudeMCP.ConfigPath = writeFile(t, "claude.json", claudeJSON)
	servers := cfg.MCPServers(zerolog.Nop())

	assert.Len(t, servers, 4)
	assert.Equal(t, mcp.ServerConfig{Command: "my-search"}, servers["claude_search"])
	assert.Equal(t, mcp.ServerConfig{Command: "db-server", Args: []string{"--ro"}}, servers["claude_db"])
	assert.Equal(t, mcp.ServerConfig{URL: "http://localhost:9000/mcp"}, servers["claude_docs"])
	assert.Equal(t, mcp.ServerConfig{Command: "mail-server", Env: []string{"TOKEN=x"}}, servers["claude_mail"])
}
