// Package builtin provides the functions registered at startup: workspace file
// access, command execution, desktop notifications, the clock, and the
// end_conversation hint.
package builtin

import (
	"fmt"
	"time"

	"github.com/aschepis/backscratcher/converse/functions"
	"github.com/rs/zerolog"
)

// Options configures the built-in functions.
type Options struct {
	// Workspace confines file access and command execution. Defaults to ".".
	Workspace string
	// Notify shows desktop notifications. Defaults to DesktopNotifier.
	Notify Notifier
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Set holds the state shared by the built-in functions.
type Set struct {
	workspace string
	notify    Notifier
	now       func() time.Time
	logger    zerolog.Logger
}

// New creates the built-in function set.
func New(opts Options, logger zerolog.Logger) *Set {
	if opts.Workspace == "" {
		opts.Workspace = "."
	}
	if opts.Notify == nil {
		opts.Notify = DesktopNotifier
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Set{
		workspace: opts.Workspace,
		notify:    opts.Notify,
		now:       opts.Now,
		logger:    logger.With().Str("component", "builtinFunctions").Logger(),
	}
}

// Register adds every built-in function to reg.
func (s *Set) Register(reg *functions.Registry) error {
	s.logger.Info().Str("workspace", s.workspace).Msg("Registering built-in functions")

	fs := filesystemDescriptors()
	entries := []struct {
		desc    functions.Descriptor
		handler functions.Handler
	}{
		{fs[0], s.readFile},
		{fs[1], s.writeFile},
		{fs[2], s.listDirectory},
		{systemDescriptor(), s.executeCommand},
		{notificationDescriptor(), s.sendNotification},
		{clockDescriptor(), s.currentTime},
	}
	for _, e := range entries {
		if err := reg.Register(e.desc, e.handler); err != nil {
			return fmt.Errorf("register %s: %w", e.desc.Name, err)
		}
	}

	if err := reg.RegisterNoOp(endConversationDescriptor()); err != nil {
		return fmt.Errorf("register %s: %w", EndConversation, err)
	}
	return nil
}

// Names lists the built-in function names.
func Names() []string {
	return []string{ReadFile, WriteFile, ListDirectory, ExecuteCommand, SendNotification, CurrentTime, EndConversation}
}
