package speech_output

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

var DefaultCommand = []string{"festival", "--language", "american_english", "--tts", "-"}

// Command runs an external text-to-speech program with the text on stdin.
type Command struct {
	args []string
}

func NewCommand(args []string) (*Command, error) {
	if len(args) == 0 {
		args = DefaultCommand
	}

	if strings.TrimSpace(args[0]) == "" {
		return nil, fmt.Errorf("tts command is empty")
	}

	return &Command{args: append([]string(nil), args...)}, nil
}

func (c *Command) Speak(ctx context.Context, text string) error {
	cmd := exec.CommandContext(ctx, c.args[0], c.args[1:]...)
	cmd.Stdin = strings.NewReader(text)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s failed: %w: %s", c.args[0], err, strings.TrimSpace(stderr.String()))
	}

	return nil
}
