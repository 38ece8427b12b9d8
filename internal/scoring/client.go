package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hearsaylabs/depogateway/internal/transcript"
)

var (
	ErrNoCredential    = errors.New("missing llm credential")
	ErrEmptyTranscript = errors.New("empty transcript")
)

const (
	DefaultModel   = "gpt-5-mini"
	DefaultTimeout = 60 * time.Second
)

// TurnScore is one deponent answer's evaluation, ordered to match the
// transcript. Either the full set is attached to a session or none is.
type TurnScore struct {
	Question    string `json:"question"`
	Response    string `json:"response"`
	Score       int    `json:"score"`
	ScoreReason string `json:"score_reason"`
	Improvement string `json:"improvement"`
}

// Result is the outcome of scoring one session transcript.
type Result struct {
	Score        int
	ScoreReason  string
	FullAnalysis string
	TurnScores   []TurnScore
}

// generator is the seam in front of the LLM provider so tests can substitute
// canned output.
type generator interface {
	Generate(ctx context.Context, instructions, input, schemaName string, schema map[string]any) (string, error)
}

// Client drives the two-pass scoring protocol: one full call, then a
// narrower turn-scores-only recovery call when the first comes back without
// per-answer detail.
type Client struct {
	llm     generator
	log     *slog.Logger
	timeout time.Duration
}

func NewClient(apiKey, model string, timeout time.Duration, log *slog.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, ErrNoCredential
	}
	if model == "" {
		model = DefaultModel
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	oai := openai.NewClient(option.WithAPIKey(apiKey))
	return &Client{
		llm:     &openAIGenerator{client: &oai, model: model},
		log:     log,
		timeout: timeout,
	}, nil
}

// Wire shapes for the model's structured output. Scores come back as
// numbers and are clamped to [0,100] integers on the way in.
type scorePayload struct {
	Score        *float64           `json:"score" jsonschema:"required"`
	ScoreReason  string             `json:"score_reason" jsonschema:"required"`
	TurnScores   []turnScorePayload `json:"turn_scores" jsonschema:"required"`
	FullAnalysis string             `json:"full_analysis" jsonschema:"required"`
}

type turnScorePayload struct {
	Question    string  `json:"question" jsonschema:"required"`
	Response    string  `json:"response" jsonschema:"required"`
	Score       float64 `json:"score" jsonschema:"required"`
	ScoreReason string  `json:"score_reason" jsonschema:"required"`
	Improvement string  `json:"improvement" jsonschema:"required"`
}

type turnScoresOnlyPayload struct {
	TurnScores []turnScorePayload `json:"turn_scores" jsonschema:"required"`
}

var (
	scoreSchema      = generateSchema[scorePayload]()
	turnScoresSchema = generateSchema[turnScoresOnlyPayload]()
)

// Score evaluates a session transcript. Scoring is strictly model-driven;
// the only numeric work done here is clamping, rounding, and answer-count
// bookkeeping.
func (c *Client) Score(ctx context.Context, turns []transcript.Turn, customInstructions string) (Result, error) {
	qa := transcript.ToQAText(turns)
	if qa == "" {
		return Result{}, ErrEmptyTranscript
	}
	answerCount := transcript.AnswerCount(qa)

	instructions := defaultRubric
	if strings.TrimSpace(customInstructions) != "" {
		instructions = customInstructions
	}
	instructions += "\n\n" + outputContract

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.llm.Generate(callCtx, instructions, scoreInput(qa, answerCount), "DepositionScore", scoreSchema)
	if err != nil {
		return Result{}, fmt.Errorf("score call: %w", err)
	}

	payload, analysisTail, ok := parseScorePayload(raw)
	if !ok {
		return Result{}, fmt.Errorf("model output carried no score: %.120s", raw)
	}

	result := Result{
		Score:       clampScore(*payload.Score),
		ScoreReason: payload.ScoreReason,
		TurnScores:  convertTurnScores(payload.TurnScores),
	}

	result.FullAnalysis = strings.TrimSpace(payload.FullAnalysis)
	if result.FullAnalysis == "" {
		result.FullAnalysis = strings.TrimSpace(analysisTail)
	}
	if result.FullAnalysis == "" {
		result.FullAnalysis = strings.TrimSpace(raw)
	}

	if answerCount > 0 && len(result.TurnScores) == 0 {
		result.TurnScores = c.recoverTurnScores(ctx, qa, answerCount)
	}

	return result, nil
}

// recoverTurnScores issues the narrower second call. Its failure never fails
// the scoring operation; turn-level detail is best-effort.
func (c *Client) recoverTurnScores(ctx context.Context, qa string, answerCount int) []TurnScore {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.llm.Generate(callCtx, recoveryInstructions(answerCount), scoreInput(qa, answerCount), "TurnScores", turnScoresSchema)
	if err != nil {
		c.log.Warn("turn score recovery call failed", "error", err)
		return nil
	}

	var payload turnScoresOnlyPayload
	if err := decodeModelJSON(raw, &payload); err != nil {
		c.log.Warn("turn score recovery output unparseable", "error", err)
		return nil
	}
	if len(payload.TurnScores) == 0 {
		c.log.Warn("turn score recovery returned empty array", "expected", answerCount)
		return nil
	}
	return convertTurnScores(payload.TurnScores)
}

// parseScorePayload parses the model's output. Strict single-object JSON is
// the fast path; otherwise scan line by line for the first line starting
// with '{' that parses with a numeric score, treating everything after that
// line as the analysis text. Older, looser model outputs arrive that way.
func parseScorePayload(raw string) (scorePayload, string, bool) {
	s := strings.TrimSpace(raw)

	var payload scorePayload
	if err := json.Unmarshal([]byte(s), &payload); err == nil && payload.Score != nil {
		return payload, "", true
	}

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "{") {
			continue
		}
		var candidate scorePayload
		if err := json.Unmarshal([]byte(trimmed), &candidate); err != nil || candidate.Score == nil {
			continue
		}
		tail := strings.TrimSpace(strings.Join(lines[i+1:], "\n"))
		return candidate, tail, true
	}

	return scorePayload{}, "", false
}

// decodeModelJSON tolerates model output that wraps the JSON object in
// stray text or whitespace.
func decodeModelJSON(raw string, v any) error {
	s := strings.TrimSpace(raw)
	if s == "" {
		return errors.New("empty model output")
	}
	if err := json.Unmarshal([]byte(s), v); err == nil {
		return nil
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start == -1 || end <= start {
		return errors.New("no JSON object in model output")
	}
	return json.Unmarshal([]byte(s[start:end+1]), v)
}

func convertTurnScores(payloads []turnScorePayload) []TurnScore {
	if len(payloads) == 0 {
		return nil
	}
	scores := make([]TurnScore, 0, len(payloads))
	for _, p := range payloads {
		scores = append(scores, TurnScore{
			Question:    p.Question,
			Response:    p.Response,
			Score:       clampScore(p.Score),
			ScoreReason: p.ScoreReason,
			Improvement: p.Improvement,
		})
	}
	return scores
}

func clampScore(v float64) int {
	score := int(math.Round(v))
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
