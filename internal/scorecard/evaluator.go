// Package scorecard turns a finished call transcript into coaching feedback
// using a chat completion model.
package scorecard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/FeliciaLa/coldcall-pro/pkg/logger"
	"github.com/FeliciaLa/coldcall-pro/pkg/scenario"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// ErrUnavailable is returned when no evaluation backend is configured.
var ErrUnavailable = errors.New("scorecard: evaluator not configured")

// Outcome is the coach's judgement of how the call ended.
type Outcome string

const (
	OutcomeMeetingBooked Outcome = "meeting_booked"
	OutcomeSoftMaybe     Outcome = "soft_maybe"
	OutcomeRejected      Outcome = "rejected"
	OutcomeHungUp        Outcome = "hung_up"
	OutcomeTimeExpired   Outcome = "time_expired"
)

// SkillGrade scores one dimension of the call.
type SkillGrade struct {
	Score    int    `json:"score"`
	Feedback string `json:"feedback"`
}

// Skills are the four graded dimensions.
type Skills struct {
	OpenerHook         SkillGrade `json:"opener_hook"`
	DiscoveryQuestions SkillGrade `json:"discovery_questions"`
	ObjectionHandling  SkillGrade `json:"objection_handling"`
	CloseNextSteps     SkillGrade `json:"close_next_steps"`
}

// KeyMoment is one coachable moment cited from the transcript.
type KeyMoment struct {
	TimestampEstimate string `json:"timestamp_estimate"`
	WhatHappened      string `json:"what_happened"`
	CoachingTip       string `json:"coaching_tip"`
}

// Result is the full scorecard returned to the caller.
type Result struct {
	Outcome        Outcome     `json:"outcome"`
	OverallScore   int         `json:"overall_score"`
	OverallSummary string      `json:"overall_summary"`
	Skills         Skills      `json:"skills"`
	KeyMoments     []KeyMoment `json:"key_moments"`
	TopStrength    string      `json:"top_strength"`
	TopImprovement string      `json:"top_improvement"`
}

// TranscriptEntry is one line of the call as submitted for grading.
type TranscriptEntry struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// Request carries everything the coach needs to grade one call.
type Request struct {
	Scenario        *scenario.Scenario
	Transcript      []TranscriptEntry
	DurationSeconds int
}

// chatCompleter is the slice of the model client the evaluator uses.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Evaluator grades finished calls.
type Evaluator struct {
	client chatCompleter
	model  string
}

// New builds an evaluator. An empty apiKey yields an evaluator whose
// Evaluate always returns ErrUnavailable, so callers can degrade instead of
// branching on configuration.
func New(apiKey, baseURL, model string) *Evaluator {
	e := &Evaluator{model: model}
	if apiKey == "" {
		return e
	}
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	e.client = openai.NewClientWithConfig(config)
	return e
}

// Evaluate grades one call and returns the parsed scorecard.
func (e *Evaluator) Evaluate(ctx context.Context, req Request) (*Result, error) {
	if e.client == nil {
		return nil, ErrUnavailable
	}
	if req.Scenario == nil {
		return nil, errors.New("scorecard: scenario is required")
	}

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: coachPrompt(req)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("scorecard: completion: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, errors.New("scorecard: empty model response")
	}

	var result Result
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &result); err != nil {
		logger.Warn("scorecard response was not valid JSON", zap.Error(err))
		return nil, fmt.Errorf("scorecard: parse response: %w", err)
	}
	return &result, nil
}

// formatTranscript renders the transcript with the prospect's real name, so
// the coach's citations read naturally.
func formatTranscript(sc *scenario.Scenario, entries []TranscriptEntry) string {
	if len(entries) == 0 {
		return "(No transcript provided)"
	}
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		name := sc.ProspectName
		if e.Speaker == "caller" {
			name = "SDR"
		}
		b.WriteString(name)
		b.WriteString(": ")
		b.WriteString(e.Text)
	}
	return b.String()
}

func coachPrompt(req Request) string {
	sc := req.Scenario
	return fmt.Sprintf(`You are an expert SDR coach analysing a cold call simulation. You have been given the full transcript of a practice cold call between a trainee SDR and an AI prospect.

CONTEXT:
- Scenario: %s
- Prospect: %s, %s at %s
- Prospect personality: %s
- Objective: %s
- Call duration: %d seconds

TRANSCRIPT:
%s

SCORING RULES — BE STRICT ON SHORT/MINIMAL CALLS:
- If the call was very short (e.g. under 30–60 seconds) or the SDR said almost nothing (only a few words, one short line, or no real engagement), scores must be LOW. Overall score and all skill scores should be in the 0–20 range. Do not give 30+ for a call where the SDR barely spoke; that would be too generous.
- Only give moderate or high scores (e.g. 40+) when there was real back-and-forth: multiple SDR turns, questions asked, some attempt at discovery or handling objections. Short calls with minimal SDR contribution should get overall_score and skill scores in the 0-25 range.

Analyse this call and return a JSON object with the following structure. Be specific, cite exact moments from the transcript, and be constructively critical — this person is here to improve, not to be flattered.

{
  "outcome": "meeting_booked" | "soft_maybe" | "rejected" | "hung_up" | "time_expired",
  "overall_score": <0-100>,
  "overall_summary": "<1-2 sentence summary of performance>",
  "skills": {
    "opener_hook": {
      "score": <0-100>,
      "feedback": "<2-3 sentences. How was their opening? Did they earn attention quickly?>"
    },
    "discovery_questions": {
      "score": <0-100>,
      "feedback": "<2-3 sentences. Did they ask smart questions? Did they listen?>"
    },
    "objection_handling": {
      "score": <0-100>,
      "feedback": "<2-3 sentences. How did they handle pushback?>"
    },
    "close_next_steps": {
      "score": <0-100>,
      "feedback": "<2-3 sentences. Did they drive toward a concrete outcome?>"
    }
  },
  "key_moments": [
    {
      "timestamp_estimate": "<approximate timestamp, e.g. '0:42'>",
      "what_happened": "<what the caller or prospect said/did>",
      "coaching_tip": "<specific advice on what to do differently>"
    }
  ],
  "top_strength": "<one thing they did well, be specific>",
  "top_improvement": "<one thing to focus on next time, be specific>"
}

Be honest but encouraging. The goal is to make this person better, not to discourage them. If they did something well, celebrate it. If they made a mistake, explain exactly what to do instead — with a concrete example of what they could have said.

Remember: a call where the SDR spoke for only a few seconds with little or no substance should get overall_score and skill scores in the 0-20 range, not 30+. Save higher scores for real engagement.

Return ONLY the JSON object. No markdown, no backticks, no explanation.`,
		sc.Name,
		sc.ProspectName, sc.ProspectTitle, sc.Company,
		sc.ChallengeDescription,
		sc.Objective,
		req.DurationSeconds,
		formatTranscript(sc, req.Transcript),
	)
}
