package usecase

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/spooky-finn/bitmex-pipe-bridge/domain"
)

// CommandOrder submits a bulk order payload to the exchange.
const CommandOrder = "order"

var ErrUnsupportedCommand = errors.New("unsupported command")

// Command is one consumer instruction of the form <tag>,<payload>.
type Command struct {
	Tag     string
	Payload string
}

// ParseCommand strips NUL padding and splits the message on its first comma.
func ParseCommand(msg string) (Command, error) {
	msg = strings.ReplaceAll(msg, "\x00", "")

	tag, payload, found := strings.Cut(msg, ",")
	if !found {
		return Command{}, fmt.Errorf("%w: no tag delimiter in %q", domain.ErrMalformedFrame, msg)
	}

	return Command{Tag: tag, Payload: payload}, nil
}

type CommandValidationConfig struct {
	SupportedCommands []string
}

type CommandValidationService struct {
	config *CommandValidationConfig
}

func NewCommandValidationService(config *CommandValidationConfig) *CommandValidationService {
	return &CommandValidationService{
		config: config,
	}
}

func (s *CommandValidationService) IsSupportedCommand(tag string) bool {
	return slices.Contains(s.config.SupportedCommands, tag)
}

func (s *CommandValidationService) Validate(cmd Command) error {
	if !s.IsSupportedCommand(cmd.Tag) {
		return fmt.Errorf("%w: %q", ErrUnsupportedCommand, cmd.Tag)
	}
	if strings.TrimSpace(cmd.Payload) == "" {
		return fmt.Errorf("command %q has an empty payload", cmd.Tag)
	}
	return nil
}
