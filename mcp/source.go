package mcp

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/aschepis/backscratcher/converse/functions"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// Register lists the tools of src and registers each one in reg under its safe
// name. Tools whose name collides with an existing function, or whose schema is
// rejected, are skipped. It returns the registered function names.
func Register(ctx context.Context, logger zerolog.Logger, reg *functions.Registry, adapter *NameAdapter, serverName string, src ToolSource) ([]string, error) {
	logger = logger.With().Str("component", "mcpSource").Str("server", serverName).Logger()

	tools, err := src.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tools from %s: %w", serverName, err)
	}
	logger.Info().Int("count", len(tools)).Msg("Discovered tools from MCP server")

	registered := make([]string, 0, len(tools))
	for _, tool := range tools {
		safeName, ok := adapter.GetSafeName(tool.Name)
		if !ok {
			logger.Warn().Str("tool", tool.Name).Str("safe_name", safeName).Msg("MCP tool name collides after sanitizing, skipping")
			continue
		}

		desc := functions.Descriptor{
			Name:        safeName,
			Description: tool.Description,
			Parameters:  tool.InputSchema,
		}
		err := reg.Register(desc, invoker(src, tool.Name))
		switch {
		case errors.Is(err, functions.ErrRegistrySealed):
			return registered, fmt.Errorf("register MCP tool %s: %w", tool.Name, err)
		case errors.Is(err, functions.ErrDuplicateFunction):
			logger.Warn().Str("tool", tool.Name).Msg("MCP tool name already registered, skipping")
			continue
		case err != nil:
			logger.Warn().Err(err).Str("tool", tool.Name).Msg("MCP tool cannot be registered, skipping")
			continue
		}
		registered = append(registered, safeName)
	}

	logger.Info().Strs("functions", registered).Msg("Completed registration for MCP server")
	return registered, nil
}

func invoker(src ToolSource, toolName string) functions.Handler {
	return func(ctx context.Context, args functions.Arguments) (any, error) {
		out, err := src.InvokeTool(ctx, toolName, args)
		if err != nil {
			return nil, err
		}
		if isErr, _ := out["error"].(bool); isErr {
			msg, _ := out["error_message"].(string)
			if msg == "" {
				msg = "tool reported an error"
			}
			return nil, fmt.Errorf("%s: %s", toolName, msg)
		}
		return out, nil
	}
}

// Connect dials every server in servers, starts it, and registers its tools.
// Servers that fail are logged and skipped. The returned clients must be closed
// by the caller.
func Connect(ctx context.Context, logger zerolog.Logger, reg *functions.Registry, servers map[string]ServerConfig) []*Client {
	if len(servers) == 0 {
		logger.Info().Msg("No MCP servers configured")
		return nil
	}

	adapter := NewNameAdapter()
	clients := make([]*Client, 0, len(servers))
	names := lo.Keys(servers)
	slices.Sort(names)
	for _, serverName := range names {
		c, err := Dial(logger, servers[serverName])
		if err != nil {
			logger.Error().Str("name", serverName).Err(err).Msg("Failed to create MCP client")
			continue
		}
		if err := c.Start(ctx); err != nil {
			logger.Error().Str("name", serverName).Err(err).Msg("Failed to start MCP client")
			_ = c.Close()
			continue
		}
		if _, err := Register(ctx, logger, reg, adapter, serverName, c); err != nil {
			logger.Error().Str("name", serverName).Err(err).Msg("Failed to register MCP tools")
			_ = c.Close()
			continue
		}
		clients = append(clients, c)
	}
	return clients
}
