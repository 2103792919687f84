package scorecard

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/FeliciaLa/coldcall-pro/pkg/scenario"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCompleter struct {
	createFunc func(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	lastReq    openai.ChatCompletionRequest
}

func (f *fakeCompleter) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.lastReq = req
	return f.createFunc(ctx, req)
}

func contentResponse(content string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: content}},
		},
	}
}

func testRequest(t *testing.T) Request {
	sc, err := scenario.Get("skeptic")
	require.NoError(t, err)
	return Request{
		Scenario: sc,
		Transcript: []TranscriptEntry{
			{Speaker: "persona", Text: "This is Rachel."},
			{Speaker: "caller", Text: "Hi Rachel, this is Alex from Meridian."},
		},
		DurationSeconds: 95,
	}
}

const sampleScorecard = `{
  "outcome": "soft_maybe",
  "overall_score": 58,
  "overall_summary": "Decent rapport but the close was weak.",
  "skills": {
    "opener_hook": {"score": 62, "feedback": "Clear intro."},
    "discovery_questions": {"score": 55, "feedback": "Asked one good question."},
    "objection_handling": {"score": 60, "feedback": "Handled the budget pushback."},
    "close_next_steps": {"score": 40, "feedback": "No concrete next step."}
  },
  "key_moments": [
    {"timestamp_estimate": "0:42", "what_happened": "Prospect pushed back on price", "coaching_tip": "Acknowledge then pivot to value."}
  ],
  "top_strength": "Confident tone",
  "top_improvement": "Always propose a specific meeting time"
}`

func TestEvaluateParsesScorecard(t *testing.T) {
	fake := &fakeCompleter{
		createFunc: func(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
			return contentResponse(sampleScorecard), nil
		},
	}
	e := &Evaluator{client: fake, model: "gpt-4o"}

	result, err := e.Evaluate(context.Background(), testRequest(t))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSoftMaybe, result.Outcome)
	assert.Equal(t, 58, result.OverallScore)
	assert.Equal(t, 40, result.Skills.CloseNextSteps.Score)
	require.Len(t, result.KeyMoments, 1)
	assert.Equal(t, "0:42", result.KeyMoments[0].TimestampEstimate)
	assert.Equal(t, "Confident tone", result.TopStrength)
}

func TestEvaluatePromptContents(t *testing.T) {
	fake := &fakeCompleter{
		createFunc: func(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
			return contentResponse(sampleScorecard), nil
		},
	}
	e := &Evaluator{client: fake, model: "gpt-4o"}

	_, err := e.Evaluate(context.Background(), testRequest(t))
	require.NoError(t, err)

	require.Len(t, fake.lastReq.Messages, 1)
	prompt := fake.lastReq.Messages[0].Content
	assert.Contains(t, prompt, "Rachel Torres: This is Rachel.")
	assert.Contains(t, prompt, "SDR: Hi Rachel, this is Alex from Meridian.")
	assert.Contains(t, prompt, "Call duration: 95 seconds")
	assert.Contains(t, prompt, "BE STRICT ON SHORT/MINIMAL CALLS")
	require.NotNil(t, fake.lastReq.ResponseFormat)
	assert.Equal(t, openai.ChatCompletionResponseFormatTypeJSONObject, fake.lastReq.ResponseFormat.Type)
	assert.Equal(t, "gpt-4o", fake.lastReq.Model)
}

func TestEvaluateEmptyTranscript(t *testing.T) {
	fake := &fakeCompleter{
		createFunc: func(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
			return contentResponse(sampleScorecard), nil
		},
	}
	e := &Evaluator{client: fake, model: "gpt-4o"}

	req := testRequest(t)
	req.Transcript = nil
	_, err := e.Evaluate(context.Background(), req)
	require.NoError(t, err)
	assert.Contains(t, fake.lastReq.Messages[0].Content, "(No transcript provided)")
}

func TestEvaluateUnavailableWithoutKey(t *testing.T) {
	e := New("", "", "gpt-4o")
	_, err := e.Evaluate(context.Background(), testRequest(t))
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestEvaluateUpstreamError(t *testing.T) {
	fake := &fakeCompleter{
		createFunc: func(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
			return openai.ChatCompletionResponse{}, errors.New("rate limited")
		},
	}
	e := &Evaluator{client: fake, model: "gpt-4o"}

	_, err := e.Evaluate(context.Background(), testRequest(t))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "rate limited"))
}

func TestEvaluateMalformedResponse(t *testing.T) {
	fake := &fakeCompleter{
		createFunc: func(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
			return contentResponse("Sorry, I cannot grade this call."), nil
		},
	}
	e := &Evaluator{client: fake, model: "gpt-4o"}

	_, err := e.Evaluate(context.Background(), testRequest(t))
	assert.Error(t, err)
}
