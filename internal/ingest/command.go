package ingest

import (
	"strings"

	"webmap/server/internal/pins"
)

// CommandKind identifies a chat command.
type CommandKind int

const (
	// CommandNone marks plain chat text.
	CommandNone CommandKind = iota
	CommandPin
	CommandUndoPin
	CommandDeletePin
	// CommandOther marks a slash command this server does not handle.
	CommandOther
)

// Command is a parsed chat command.
type Command struct {
	Kind    CommandKind
	Name    string
	PinKind pins.Kind
	Label   string
}

// ParseCommand classifies chat text.
//
//	/pin [kind] label
//	/undoPin
//	/deletePin label
func ParseCommand(text string) Command {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "/") {
		return Command{Kind: CommandNone}
	}
	name, rest := splitToken(trimmed)
	cmd := Command{Kind: CommandOther, Name: name}
	switch {
	case name == "/pin":
		cmd.Kind = CommandPin
		cmd.PinKind = pins.KindDot
		cmd.Label = rest
		if token, remainder := splitToken(rest); token != "" {
			if kind, ok := pins.ParseKind(token); ok {
				cmd.PinKind = kind
				cmd.Label = remainder
			}
		}
	case name == "/undoPin":
		cmd.Kind = CommandUndoPin
	case name == "/deletePin":
		cmd.Kind = CommandDeletePin
		cmd.Label = rest
	}
	return cmd
}

func splitToken(s string) (string, string) {
	s = strings.TrimSpace(s)
	idx := strings.IndexAny(s, " \t")
	if idx < 0 {
		return s, ""
	}
	return s[:idx], strings.TrimSpace(s[idx+1:])
}
