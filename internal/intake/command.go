// Package intake consumes chat commands from a message queue and drives the supervisor.
package intake

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cuongbtq/media-relay/internal/downloader/domain"
)

// ErrInvalidCommand is returned for messages that can never be processed
var ErrInvalidCommand = errors.New("invalid command")

// Action names what a command asks for
type Action string

const (
	ActionDownload Action = "download"
	ActionChoose   Action = "choose"
	ActionCancel   Action = "cancel"
)

// Command is one chat request delivered over the queue
type Command struct {
	Action Action        `json:"action"`
	ChatID int64         `json:"chat_id"`
	URL    string        `json:"url,omitempty"`
	Format domain.Format `json:"format,omitempty"`
}

// ParseCommand decodes and validates a message body
func ParseCommand(body []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(body, &cmd); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	if cmd.ChatID == 0 {
		return Command{}, fmt.Errorf("%w: missing chat_id", ErrInvalidCommand)
	}

	switch cmd.Action {
	case ActionDownload:
		if cmd.URL == "" {
			return Command{}, fmt.Errorf("%w: missing url", ErrInvalidCommand)
		}
	case ActionChoose:
		if strings.EqualFold(strings.TrimSpace(string(cmd.Format)), "cancel") {
			cmd.Action = ActionCancel
			cmd.Format = ""
			break
		}
		format, err := domain.ParseFormat(string(cmd.Format))
		if err != nil {
			return Command{}, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
		}
		cmd.Format = format
	case ActionCancel:
	default:
		return Command{}, fmt.Errorf("%w: unknown action %q", ErrInvalidCommand, cmd.Action)
	}

	return cmd, nil
}
