package conf

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/manifoldco/promptui"

	"github.com/devricklin/discord-relay/internal/biz/domain"
)

// Startup prompt labels
const (
	LabelChannelID   = "Enter Discord Channel ID where the bot should run"
	LabelReplyDelay  = "Enter the delay time between each automatic reply (in seconds, e.g., 30)"
	LabelSettleDelay = "Enter the reply delay after receiving the latest message (in seconds, e.g., 3)"
)

// Asker reads one line of operator input
type Asker interface {
	Ask(label string) (string, error)
}

// PromptAsker asks on the terminal
type PromptAsker struct{}

// Ask shows label and returns the entered line
func (PromptAsker) Ask(label string) (string, error) {
	p := promptui.Prompt{Label: label}
	return p.Run()
}

// Preset holds values given on the command line. Nil fields are asked for.
type Preset struct {
	ChannelID   *string
	ReplyDelay  *string
	SettleDelay *string
}

// StartupValues are the three values fixed for the process lifetime
type StartupValues struct {
	ChannelID          uint64
	ReplyDelaySeconds  int
	SettleDelaySeconds int
}

// BotConfig converts the values into the gate configuration
func (v StartupValues) BotConfig() domain.BotConfig {
	return domain.BotConfig{
		ChannelID:   strconv.FormatUint(v.ChannelID, 10),
		ReplyDelay:  time.Duration(v.ReplyDelaySeconds) * time.Second,
		SettleDelay: time.Duration(v.SettleDelaySeconds) * time.Second,
	}
}

// InputError is a fatal startup input problem
type InputError struct {
	Label  string
	Input  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("%s (%s: %q)", e.Reason, e.Label, e.Input)
}

const (
	reasonNotNumber = "Input must be a number"
	reasonNegative  = "Input must not be negative"
	reasonChannelID = "Channel ID must be a positive number"
)

// ReadStartup resolves the startup values from preset, asking for the missing ones
func ReadStartup(asker Asker, preset Preset) (StartupValues, error) {
	var v StartupValues

	raw, err := resolve(asker, preset.ChannelID, LabelChannelID)
	if err != nil {
		return v, err
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		reason := reasonChannelID
		if _, perr := strconv.ParseInt(raw, 10, 64); perr != nil {
			reason = reasonNotNumber
		}
		return v, &InputError{Label: LabelChannelID, Input: raw, Reason: reason}
	}
	v.ChannelID = id

	if v.ReplyDelaySeconds, err = readSeconds(asker, preset.ReplyDelay, LabelReplyDelay); err != nil {
		return v, err
	}
	if v.SettleDelaySeconds, err = readSeconds(asker, preset.SettleDelay, LabelSettleDelay); err != nil {
		return v, err
	}
	return v, nil
}

func readSeconds(asker Asker, preset *string, label string) (int, error) {
	raw, err := resolve(asker, preset, label)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &InputError{Label: label, Input: raw, Reason: reasonNotNumber}
	}
	if n < 0 {
		return 0, &InputError{Label: label, Input: raw, Reason: reasonNegative}
	}
	return n, nil
}

func resolve(asker Asker, preset *string, label string) (string, error) {
	if preset != nil {
		return strings.TrimSpace(*preset), nil
	}
	raw, err := asker.Ask(label)
	if err != nil {
		return "", fmt.Errorf("%s: %w", label, err)
	}
	return strings.TrimSpace(raw), nil
}
