package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/aschepis/backscratcher/converse/mcp"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// ClaudeConfig represents the structure of Claude's configuration file.
type ClaudeConfig struct {
	MCPServers map[string]ClaudeMCPServer `json:"mcpServers,omitempty"` // Global MCP servers at root level
	Projects   map[string]ClaudeProject   `json:"projects"`
}

// ClaudeProject represents a project configuration in Claude's config.
type ClaudeProject struct {
	MCPServers map[string]ClaudeMCPServer `json:"mcpServers"`
}

// ClaudeMCPServer represents an MCP server configuration in Claude's format.
type ClaudeMCPServer struct {
	Command string          `json:"command,omitempty"`
	Args    []string        `json:"args,omitempty"`
	Env     json.RawMessage `json:"env,omitempty"` // Can be array of strings or object
	URL     string          `json:"url,omitempty"`
}

// GetEnvAsStrings converts the Env field to a slice of strings.
// Env can be either an array of strings or an object (map[string]string).
// If it's an object, converts it to "KEY=VALUE" format strings.
// If it's an array, returns it as-is.
func (c *ClaudeMCPServer) GetEnvAsStrings(logger zerolog.Logger) []string {
	if len(c.Env) == 0 {
		return nil
	}

	// Try to unmarshal as array of strings first
	var envArray []string
	if err := json.Unmarshal(c.Env, &envArray); err == nil {
		return envArray
	}

	// If that fails, try as object/map
	var envMap map[string]string
	if err := json.Unmarshal(c.Env, &envMap); err == nil {
		envStrings := lo.MapToSlice(envMap, func(key string, value string) string {
			return fmt.Sprintf("%s=%s", key, value)
		})
		slices.Sort(envStrings)
		return envStrings
	}

	// If both fail, return empty
	logger.Warn().
		Str("env", string(c.Env)).
		Msg("Failed to parse env field, expected array of strings or object")
	return nil
}

// LoadClaudeConfig reads Claude's JSON configuration. A missing file yields an
// empty config; a file that cannot be parsed is an error.
func LoadClaudeConfig(logger zerolog.Logger, path string) (*ClaudeConfig, error) {
	expandedPath := expandPath(path)

	cfg := ClaudeConfig{}
	data, err := os.ReadFile(expandedPath) //#nosec 304 -- intentional file read for config
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Info().Str("path", expandedPath).Msg("Claude config does not exist")
	case err != nil:
		return nil, fmt.Errorf("failed to read Claude config file %q: %w", expandedPath, err)
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse Claude config file %q: %w", expandedPath, err)
		}
	}

	if cfg.Projects == nil {
		cfg.Projects = make(map[string]ClaudeProject)
	}
	if cfg.MCPServers == nil {
		cfg.MCPServers = make(map[string]ClaudeMCPServer)
	}

	logger.Info().Int("global_servers", len(cfg.MCPServers)).Int("projects", len(cfg.Projects)).Msg("Loaded Claude config")
	return &cfg, nil
}

// MapClaudeToMCPServerConfig converts Claude MCP server configurations to mcp.ServerConfig.
// Names are prefixed with "claude_" to avoid conflicts with configured servers.
func MapClaudeToMCPServerConfig(logger zerolog.Logger, claudeServers map[string]ClaudeMCPServer) map[string]mcp.ServerConfig {
	result := make(map[string]mcp.ServerConfig, len(claudeServers))

	for serverName, claudeServer := range claudeServers {
		safeName := "claude_" + serverName
		envStrings := claudeServer.GetEnvAsStrings(logger)
		logger.Debug().
			Str("server", serverName).
			Str("safe_name", safeName).
			Str("command", claudeServer.Command).
			Str("url", claudeServer.URL).
			Int("env_var_count", len(envStrings)).
			Msg("Mapping Claude MCP server")

		result[safeName] = mcp.ServerConfig{
			Command: claudeServer.Command,
			Args:    claudeServer.Args,
			Env:     envStrings,
			URL:     claudeServer.URL,
		}
	}

	logger.Info().Int("servers", len(result)).Msg("Mapped Claude MCP servers")
	return result
}

// ExtractMCPServersFromProjects collects the MCP servers of the selected
// projects. projectPaths may contain "Global" for the root-level servers; a
// path also selects the projects below it. An empty list selects everything.
// It also reports which servers each selected project contributed.
func ExtractMCPServersFromProjects(logger zerolog.Logger, claudeConfig *ClaudeConfig, projectPaths []string) (map[string]ClaudeMCPServer, map[string][]string) {
	servers := make(map[string]ClaudeMCPServer)
	contributed := make(map[string][]string)

	includeGlobal := len(projectPaths) == 0 || slices.Contains(projectPaths, "Global")
	filters := lo.FilterMap(projectPaths, func(path string, _ int) (string, bool) {
		return filepath.Clean(expandPath(path)), path != "Global"
	})
	selected := func(projectPath string) bool {
		if len(projectPaths) == 0 {
			return true
		}
		clean := filepath.Clean(expandPath(projectPath))
		return lo.SomeBy(filters, func(filter string) bool {
			rel, err := filepath.Rel(filter, clean)
			return err == nil && !strings.HasPrefix(rel, "..")
		})
	}

	add := func(source string, from map[string]ClaudeMCPServer) {
		if len(from) == 0 {
			return
		}
		names := lo.Keys(from)
		slices.Sort(names)
		for _, name := range names {
			servers[name] = from[name]
		}
		contributed[source] = names
		logger.Debug().Str("source", source).Strs("servers", names).Msg("Extracted Claude MCP servers")
	}

	if includeGlobal {
		add("Global", claudeConfig.MCPServers)
	}
	projects := lo.Keys(claudeConfig.Projects)
	slices.Sort(projects)
	for _, projectPath := range projects {
		if selected(projectPath) {
			add(projectPath, claudeConfig.Projects[projectPath].MCPServers)
		}
	}

	logger.Info().Int("server_count", len(servers)).Msg("Extracted MCP servers from Claude config")
	return servers, contributed
}

// MCPServers returns the configured MCP servers, plus those found in Claude's
// config when functions.claude_mcp is enabled. Configured servers win on a
// name clash.
func (c *Config) MCPServers(logger zerolog.Logger) map[string]mcp.ServerConfig {
	servers := make(map[string]mcp.ServerConfig, len(c.Functions.MCPServers))
	for name, server := range c.Functions.MCPServers {
		servers[name] = server
	}
	if !c.Functions.ClaudeMCP.Enabled {
		return servers
	}

	claudeConfig, err := LoadClaudeConfig(logger, c.Functions.ClaudeMCP.ConfigPath)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to load Claude config, skipping Claude MCP servers")
		return servers
	}
	claudeServers, _ := ExtractMCPServersFromProjects(logger, claudeConfig, c.Functions.ClaudeMCP.Projects)
	added := 0
	for name, server := range MapClaudeToMCPServerConfig(logger, claudeServers) {
		if _, exists := servers[name]; !exists {
			servers[name] = server
			added++
		}
	}
	logger.Info().Int("added", added).Msg("Merged Claude MCP servers")
	return servers
}
