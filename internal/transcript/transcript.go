package transcript

import "strings"

// Turn is one utterance in a vendor transcript. Different vendor event
// versions carry the spoken text and the speaker under different field
// names, so every candidate is modeled and the first non-empty one wins.
type Turn struct {
	Role            string   `json:"role,omitempty"`
	Speaker         string   `json:"speaker,omitempty"`
	Message         string   `json:"message,omitempty"`
	OriginalMessage string   `json:"original_message,omitempty"`
	Text            string   `json:"text,omitempty"`
	Content         string   `json:"content,omitempty"`
	TimeInCallSecs  *float64 `json:"time_in_call_secs,omitempty"`
}

// Body returns the spoken text of the turn.
func (t Turn) Body() string {
	for _, candidate := range []string{t.Message, t.OriginalMessage, t.Text, t.Content} {
		if candidate != "" {
			return candidate
		}
	}
	return ""
}

// SpeakerRole returns the speaker tag of the turn.
func (t Turn) SpeakerRole() string {
	if t.Role != "" {
		return t.Role
	}
	return t.Speaker
}

// IsQuestion reports whether the role belongs to the examining side.
// Everything else, unknown roles included, is treated as the deponent.
func IsQuestion(role string) bool {
	switch strings.ToLower(role) {
	case "agent", "assistant":
		return true
	}
	return false
}

// ToQAText renders turns as a canonical two-party transcript:
//
//	Q: <examiner line>
//
//	A: <deponent line>
//
// Blank turns are dropped entirely. The exact shape is a contract:
// AnswerCount counts "A: " line prefixes in this output and the scoring
// client states that count to the model.
func ToQAText(turns []Turn) string {
	lines := make([]string, 0, len(turns))
	for _, turn := range turns {
		body := strings.TrimSpace(turn.Body())
		if body == "" {
			continue
		}
		label := "A"
		if IsQuestion(turn.SpeakerRole()) {
			label = "Q"
		}
		lines = append(lines, label+": "+body)
	}
	return strings.Join(lines, "\n\n")
}

// AnswerCount counts deponent answers in a ToQAText transcript.
func AnswerCount(qa string) int {
	if qa == "" {
		return 0
	}
	count := 0
	for _, line := range strings.Split(qa, "\n") {
		if strings.HasPrefix(line, "A: ") {
			count++
		}
	}
	return count
}
