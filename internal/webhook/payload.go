package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/hearsaylabs/depogateway/internal/transcript"
)

var ErrMissingData = errors.New("webhook payload missing data object")

// Event is the vendor's "conversation ended" delivery.
type Event struct {
	Type           string     `json:"type"`
	EventTimestamp int64      `json:"event_timestamp"`
	Data           *EventData `json:"data"`
}

type EventData struct {
	ConversationID string            `json:"conversation_id"`
	AgentID        string            `json:"agent_id"`
	Status         string            `json:"status"`
	Transcript     []transcript.Turn `json:"transcript"`

	DynamicVariables                 map[string]any `json:"dynamic_variables"`
	ConversationInitiationClientData *ClientData    `json:"conversation_initiation_client_data"`
	Metadata                         *Metadata      `json:"metadata"`
	Analysis                         *Analysis      `json:"analysis"`
}

type ClientData struct {
	DynamicVariables map[string]any `json:"dynamic_variables"`
}

type Metadata struct {
	CallDurationSecs int            `json:"call_duration_secs"`
	DynamicVariables map[string]any `json:"dynamic_variables"`
}

type Analysis struct {
	TranscriptSummary string `json:"transcript_summary"`
	CallSummaryTitle  string `json:"call_summary_title"`
}

// ParseEvent decodes a verified webhook body.
func ParseEvent(body []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("decode webhook payload: %w", err)
	}
	if event.Data == nil {
		return nil, ErrMissingData
	}
	return &event, nil
}

// DynamicVars returns the session variables attached by the widget at call
// start. Vendor payload versions have carried them in three places; the
// first populated location wins.
func (d *EventData) DynamicVars() map[string]any {
	if len(d.DynamicVariables) > 0 {
		return d.DynamicVariables
	}
	if d.ConversationInitiationClientData != nil && len(d.ConversationInitiationClientData.DynamicVariables) > 0 {
		return d.ConversationInitiationClientData.DynamicVariables
	}
	if d.Metadata != nil && len(d.Metadata.DynamicVariables) > 0 {
		return d.Metadata.DynamicVariables
	}
	return nil
}

// CallDurationSecs returns the call duration, zero when absent.
func (d *EventData) CallDurationSecs() int {
	if d.Metadata == nil {
		return 0
	}
	return d.Metadata.CallDurationSecs
}

// StringVar reads a dynamic variable as a string, tolerating numeric values.
func StringVar(vars map[string]any, key string) string {
	switch v := vars[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		if v == math.Trunc(v) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	}
	return ""
}

// StageVar reads the practice-session stage. Only 1 through 4 are valid;
// anything else is reported as unknown.
func StageVar(vars map[string]any) *int {
	raw := StringVar(vars, "stage")
	if raw == "" {
		return nil
	}
	stage, err := strconv.Atoi(raw)
	if err != nil || stage < 1 || stage > 4 {
		return nil
	}
	return &stage
}
