package builtin

import "github.com/aschepis/backscratcher/converse/functions"

// Names of the built-in functions.
const (
	ReadFile         = "read_file"
	WriteFile        = "write_file"
	ListDirectory    = "list_directory"
	ExecuteCommand   = "execute_command"
	SendNotification = "send_notification"
	CurrentTime      = "current_time"
	EndConversation  = "end_conversation"
)

func filesystemDescriptors() []functions.Descriptor {
	return []functions.Descriptor{
		{
			Name:        ReadFile,
			Description: "Read the contents of a file. Returns the file content, size, and path.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "Path to the file to read (relative to workspace)",
					},
					"max_bytes": map[string]any{
						"type":        "integer",
						"description": "Maximum number of bytes to read (0 = read entire file)",
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        WriteFile,
			Description: "Write content to a file. Creates the file if it doesn't exist, overwrites if it does.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "Path to the file to write (relative to workspace)",
					},
					"content": map[string]any{
						"type":        "string",
						"description": "Content to write to the file",
					},
					"create_dirs": map[string]any{
						"type":        "boolean",
						"description": "Create parent directories if they don't exist",
					},
				},
				"required": []string{"path", "content"},
			},
		},
		{
			Name:        ListDirectory,
			Description: "List files and directories in a path. Can list recursively and optionally include hidden files.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "Path to the directory to list (relative to workspace, default: '.')",
					},
					"recursive": map[string]any{
						"type":        "boolean",
						"description": "Whether to list recursively",
					},
					"include_hidden": map[string]any{
						"type":        "boolean",
						"description": "Whether to include hidden files (starting with '.')",
					},
				},
			},
		},
	}
}

func systemDescriptor() functions.Descriptor {
	return functions.Descriptor{
		Name: ExecuteCommand,
		Description: "Execute a command in the workspace directory. Commands that delete files, format disks, " +
			"or pipe downloaded code into a shell are blocked.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"command": map[string]any{
					"type":        "string",
					"description": "Command to execute (e.g., 'ls', 'grep', 'git')",
				},
				"args": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Command arguments",
				},
				"timeout": map[string]any{
					"type":        "integer",
					"description": "Timeout in seconds (default: 30, max: 300)",
				},
				"working_dir": map[string]any{
					"type":        "string",
					"description": "Working directory relative to workspace (default: workspace root)",
				},
				"stdin": map[string]any{
					"type":        "string",
					"description": "Standard input to pipe to the command",
				},
			},
			"required": []string{"command"},
		},
	}
}

func notificationDescriptor() functions.Descriptor {
	return functions.Descriptor{
		Name:        SendNotification,
		Description: "Show a desktop notification to the user. Use this to alert the user about something important or a completed task.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"message": map[string]any{
					"type":        "string",
					"description": "The notification message",
				},
				"title": map[string]any{
					"type":        "string",
					"description": "Optional title for the notification (default: 'Converse')",
				},
			},
			"required": []string{"message"},
		},
	}
}

func clockDescriptor() functions.Descriptor {
	return functions.Descriptor{
		Name:        CurrentTime,
		Description: "Get the current date and time, optionally in a named IANA time zone such as 'America/Chicago'.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"timezone": map[string]any{
					"type":        "string",
					"description": "IANA time zone name (default: local time)",
				},
			},
		},
	}
}

func endConversationDescriptor() functions.Descriptor {
	return functions.Descriptor{
		Name: EndConversation,
		Description: "Signal that the conversation is complete and no further replies are needed. " +
			"Call this after giving your final answer.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"reason": map[string]any{
					"type":        "string",
					"description": "Short reason the conversation is over",
				},
			},
		},
		NoOp: true,
	}
}
