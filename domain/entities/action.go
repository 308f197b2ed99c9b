package entities

// ActionKind classifies the command embedded in an assistant utterance
type ActionKind string

const (
	ActionNone    ActionKind = "none"
	ActionIdle    ActionKind = "idle"
	ActionBrowser ActionKind = "browser"
)

// ParsedAction is derived once per assistant utterance and never persisted.
type ParsedAction struct {
	Kind ActionKind `json:"kind"`
	// Command is set only for ActionBrowser.
	Command     *string `json:"command"`
	CleanedText string  `json:"cleaned_text"`
}

// HasCommand reports whether the action should be dispatched
func (a ParsedAction) HasCommand() bool {
	return a.Kind == ActionBrowser && a.Command != nil && *a.Command != ""
}
