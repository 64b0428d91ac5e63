// Package mcp connects to Model Context Protocol servers and exposes their
// tools as callable functions.
package mcp

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

const (
	clientName    = "converse"
	clientVersion = "1.0.0"
)

// ServerConfig describes how to reach one MCP server. Command selects the
// STDIO transport, URL the streamable HTTP transport.
type ServerConfig struct {
	Command string   `yaml:"command,omitempty"`
	Args    []string `yaml:"args,omitempty"`
	Env     []string `yaml:"env,omitempty"` // KEY=VALUE pairs for STDIO servers
	URL     string   `yaml:"url,omitempty"`
}

// ToolDefinition represents an MCP tool definition.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// ToolSource lists and invokes remote tools.
type ToolSource interface {
	ListTools(ctx context.Context) ([]ToolDefinition, error)
	InvokeTool(ctx context.Context, name string, input map[string]any) (map[string]any, error)
}

// Client is a connection to a single MCP server.
type Client struct {
	client *client.Client
	target string
	// STDIO transports are started by their constructor.
	needsStart bool
	logger     zerolog.Logger
}

// Dial creates a client for cfg using the transport it names.
func Dial(logger zerolog.Logger, cfg ServerConfig) (*Client, error) {
	switch {
	case cfg.Command != "":
		return NewStdioClient(logger, cfg.Command, cfg.Args, cfg.Env)
	case cfg.URL != "":
		return NewHTTPClient(logger, cfg.URL)
	default:
		return nil, fmt.Errorf("MCP server needs either a command or a url")
	}
}

// NewStdioClient launches command and talks to it over STDIO.
func NewStdioClient(logger zerolog.Logger, command string, args, env []string) (*Client, error) {
	if strings.TrimSpace(command) == "" {
		return nil, fmt.Errorf("command is required for STDIO MCP client")
	}

	// Split command into command and args if it contains spaces
	parts := strings.Fields(command)
	cmd := parts[0]
	cmdArgs := append(append([]string{}, parts[1:]...), args...)

	logger = logger.With().Str("component", "mcpClient").Str("transport", "stdio").Logger()
	logger.Info().Str("command", cmd).Strs("args", cmdArgs).Msg("Creating STDIO MCP client")

	mcpClient, err := client.NewStdioMCPClient(cmd, env, cmdArgs...)
	if err != nil {
		return nil, fmt.Errorf("failed to create stdio MCP client: %w", err)
	}
	return newClient(logger, mcpClient, cmd, false), nil
}

// NewHTTPClient connects to a streamable HTTP MCP endpoint.
func NewHTTPClient(logger zerolog.Logger, baseURL string) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("baseURL is required for HTTP MCP client")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid baseURL: %w", err)
	}

	logger = logger.With().Str("component", "mcpClient").Str("transport", "http").Logger()
	logger.Info().Str("base_url", baseURL).Msg("Creating HTTP MCP client")

	mcpClient, err := client.NewStreamableHttpClient(baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP MCP client: %w", err)
	}
	return newClient(logger, mcpClient, baseURL, true), nil
}

func newClient(logger zerolog.Logger, c *client.Client, target string, needsStart bool) *Client {
	return &Client{client: c, target: target, needsStart: needsStart, logger: logger}
}

// Start performs the MCP initialize handshake.
func (c *Client) Start(ctx context.Context) error {
	if c.needsStart {
		if err := c.client.Start(ctx); err != nil {
			return fmt.Errorf("failed to start MCP client: %w", err)
		}
	}

	initReq := mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			Capabilities:    mcp.ClientCapabilities{},
			ClientInfo: mcp.Implementation{
				Name:    clientName,
				Version: clientVersion,
			},
		},
	}
	result, err := c.client.Initialize(ctx, initReq)
	if err != nil {
		c.logger.Error().Err(err).Str("target", c.target).Msg("MCP initialize failed")
		return fmt.Errorf("failed to initialize MCP client: %w", err)
	}
	c.logger.Info().
		Str("target", c.target).
		Str("server", result.ServerInfo.Name).
		Str("protocol_version", result.ProtocolVersion).
		Msg("MCP client started")
	return nil
}

// ListTools returns all tools available from the MCP server.
func (c *Client) ListTools(ctx context.Context) ([]ToolDefinition, error) {
	result, err := c.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}
	c.logger.Info().Str("target", c.target).Int("tool_count", len(result.Tools)).Msg("Received tools from MCP server")

	return lo.Map(result.Tools, func(tool mcp.Tool, _ int) ToolDefinition {
		inputSchema := map[string]any{"type": tool.InputSchema.Type}
		if tool.InputSchema.Properties != nil {
			inputSchema["properties"] = tool.InputSchema.Properties
		}
		if len(tool.InputSchema.Required) > 0 {
			inputSchema["required"] = tool.InputSchema.Required
		}
		if len(tool.InputSchema.Defs) > 0 {
			inputSchema["$defs"] = tool.InputSchema.Defs
		}
		return ToolDefinition{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: inputSchema,
		}
	}), nil
}

// InvokeTool invokes a tool on the MCP server. Text content is returned under
// "text"; a tool-level failure sets "error" and "error_message".
func (c *Client) InvokeTool(ctx context.Context, name string, input map[string]any) (map[string]any, error) {
	c.logger.Debug().Str("tool_name", name).Str("target", c.target).Msg("Invoking tool on MCP server")

	result, err := c.client.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: input,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to invoke tool %s: %w", name, err)
	}
	return toolOutput(result), nil
}

func toolOutput(result *mcp.CallToolResult) map[string]any {
	output := make(map[string]any)

	texts := lo.FilterMap(result.Content, func(content mcp.Content, _ int) (string, bool) {
		if textContent, ok := mcp.AsTextContent(content); ok {
			return textContent.Text, true
		}
		text := mcp.GetTextFromContent(content)
		return text, text != ""
	})
	switch len(texts) {
	case 0:
	case 1:
		output["text"] = texts[0]
	default:
		output["text"] = texts
	}

	if result.IsError {
		output["error"] = true
		if len(texts) > 0 {
			output["error_message"] = texts[0]
		}
	}
	return output
}

// Close closes the connection to the MCP server.
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
