// Package action extracts the automation directive that the agent embeds
// in its replies.
package action

import (
	"regexp"
	"strings"

	"github.com/amirulhamizan12/agent-ui/domain/entities"
)

var actionTag = regexp.MustCompile(`<action>browser\("([^"]*)"\)</action>`)

// Parse looks for the first <action>browser("...")</action> tag in text.
//
// Without a tag the text is returned unchanged with ActionNone. A command of
// "idle" (any case, surrounding spaces ignored) yields ActionIdle and no
// command. Otherwise the trimmed command is returned with ActionBrowser. In
// both tagged cases CleanedText is text with the tag removed and the outer
// ends trimmed; inner whitespace is kept as is.
func Parse(text string) entities.ParsedAction {
	loc := actionTag.FindStringSubmatchIndex(text)
	if loc == nil {
		return entities.ParsedAction{Kind: entities.ActionNone, CleanedText: text}
	}

	command := strings.TrimSpace(text[loc[2]:loc[3]])
	cleaned := strings.TrimSpace(text[:loc[0]] + text[loc[1]:])

	if strings.EqualFold(command, "idle") {
		return entities.ParsedAction{Kind: entities.ActionIdle, CleanedText: cleaned}
	}
	return entities.ParsedAction{
		Kind:        entities.ActionBrowser,
		Command:     &command,
		CleanedText: cleaned,
	}
}
