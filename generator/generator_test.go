package generator

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberune/taleweave/card"
	contexterrors "github.com/emberune/taleweave/internal/errors"
)

// scriptedChat returns canned completion replies in order, then
// repeats the last one.
type scriptedChat struct {
	replies []string
	errs    []error
	calls   int
}

func (s *scriptedChat) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return openai.ChatCompletionResponse{}, s.errs[i]
	}
	reply := ""
	if len(s.replies) > 0 {
		if i >= len(s.replies) {
			i = len(s.replies) - 1
		}
		reply = s.replies[i]
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: reply}},
		},
	}, nil
}

func newScriptedService(chat *scriptedChat) *Service {
	svc := NewService(&Config{MaxRetries: 2}, nil)
	svc.client = chat
	return svc
}

func TestServiceGenerate(t *testing.T) {
	ctx := context.Background()
	mira := card.New("Mira",
		card.WithDescription("A wandering cartographer."),
		card.WithPersonality("curious, restless"),
	)

	t.Run("parses a clean JSON reply", func(t *testing.T) {
		svc := newScriptedService(&scriptedChat{replies: []string{
			`{"name": "Mira", "essence": "Maps forgotten roads.", "speech": "clipped", "motive": "completion"}`,
		}})

		frame, err := svc.Generate(ctx, mira)
		require.NoError(t, err)
		assert.Equal(t, "Mira", frame.Name)
		assert.Equal(t, "Maps forgotten roads.", frame.Essence)
		assert.Equal(t, card.FrameSourceGenerated, frame.Source)
		assert.False(t, frame.GeneratedAt.IsZero())
	})

	t.Run("unwraps a fenced reply", func(t *testing.T) {
		svc := newScriptedService(&scriptedChat{replies: []string{
			"```json\n{\"name\": \"Mira\", \"essence\": \"Maps forgotten roads.\"}\n```",
		}})

		frame, err := svc.Generate(ctx, mira)
		require.NoError(t, err)
		assert.Equal(t, "Maps forgotten roads.", frame.Essence)
	})

	t.Run("fills a missing name from the card", func(t *testing.T) {
		svc := newScriptedService(&scriptedChat{replies: []string{
			`{"essence": "Maps forgotten roads."}`,
		}})

		frame, err := svc.Generate(ctx, mira)
		require.NoError(t, err)
		assert.Equal(t, "Mira", frame.Name)
	})

	t.Run("unparseable reply is a generation failure", func(t *testing.T) {
		svc := newScriptedService(&scriptedChat{replies: []string{"I cannot do that."}})

		_, err := svc.Generate(ctx, mira)
		require.Error(t, err)
		assert.True(t, contexterrors.HasCode(err, contexterrors.ErrCodeGenerationFailed))
	})

	t.Run("transient error is retried", func(t *testing.T) {
		chat := &scriptedChat{
			errs:    []error{errors.New("overloaded"), nil},
			replies: []string{"", `{"name": "Mira", "essence": "Maps forgotten roads."}`},
		}
		svc := newScriptedService(chat)
		svc.config.MaxRetries = 2

		frame, err := svc.Generate(ctx, mira)
		require.NoError(t, err)
		assert.Equal(t, "Maps forgotten roads.", frame.Essence)
		assert.Equal(t, 2, chat.calls)
	})

	t.Run("nil card is rejected", func(t *testing.T) {
		svc := newScriptedService(&scriptedChat{})
		_, err := svc.Generate(ctx, nil)
		require.Error(t, err)
		assert.True(t, contexterrors.HasCode(err, contexterrors.ErrCodeInvalidArgument))
	})
}

func TestParseFrameReply(t *testing.T) {
	frame, err := parseFrameReply(`noise before {"name":"A","essence":"B"} noise after`)
	require.NoError(t, err)
	assert.Equal(t, "A", frame.Name)

	_, err = parseFrameReply("not json at all")
	assert.Error(t, err)
}
