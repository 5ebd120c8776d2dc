package chat

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// actionPattern matches the hidden command tags the agent is instructed to
// emit. DOTALL so a tag spanning lines is still caught.
var actionPattern = regexp.MustCompile(`(?s)<system_action>(.*?)</system_action>`)

// Action is one parsed hidden command, e.g. key "topic" value "recursion" or
// key "reset" with no value.
type Action struct {
	Key   string
	Value string
}

// SanitizeReply strips every <system_action> tag from the reply and returns
// the cleaned text plus the parsed actions. Tags are removed even when their
// content is unrecognized, so the user never sees the raw protocol.
func SanitizeReply(reply string) (string, []Action) {
	var actions []Action
	for _, match := range actionPattern.FindAllStringSubmatch(reply, -1) {
		actions = append(actions, parseActions(match[1])...)
	}
	clean := strings.TrimSpace(actionPattern.ReplaceAllString(reply, ""))
	return clean, actions
}

// parseActions splits a tag body into key=value pairs. Multiple commands may
// share one tag separated by semicolons.
func parseActions(body string) []Action {
	var actions []Action
	for _, part := range strings.Split(body, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, _ := strings.Cut(part, "=")
		actions = append(actions, Action{
			Key:   strings.TrimSpace(key),
			Value: strings.TrimSpace(value),
		})
	}
	return actions
}

// DevCommand is a recognized developer slash command.
type DevCommand struct {
	Cmd string
	Arg string
}

// DetectDevCommand recognizes lightweight developer slash commands typed
// directly by the user. Returns nil for ordinary prompts.
func DetectDevCommand(prompt string) *DevCommand {
	text := strings.ToLower(strings.TrimSpace(prompt))
	if strings.HasPrefix(text, "/search_topic") {
		fields := strings.Fields(text)
		return &DevCommand{Cmd: "search_topic", Arg: strings.Join(fields[1:], " ")}
	}
	if strings.HasPrefix(text, "/reset") {
		return &DevCommand{Cmd: "reset"}
	}
	return nil
}

// NewSessionID returns a timestamp-prefixed random session identifier, e.g.
// "20260830-151204-3fa9c21b". The readable prefix keeps log lines and
// database rows easy to correlate by eye.
func NewSessionID() string {
	return time.Now().UTC().Format("20060102-150405-") + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
