package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"taste-agent/internal/config"
	"taste-agent/internal/usecase"
)

func TestBuild_StaticKeyNeedsNoAWS(t *testing.T) {
	cfg := config.Config{
		OpenAIAPIKey:      "sk-test",
		OpenAIModel:       "gpt-4o-mini",
		RequestsPerMinute: 20,
		ConversationTTL:   30 * time.Minute,
		Limits:            usecase.DefaultLimits(),
	}

	a, err := Build(context.Background(), cfg, nil)
	require.NoError(t, err)
	require.NotNil(t, a.Orchestrator)
	require.Nil(t, a.Journal)
	require.Len(t, a.Tools.Schemas(), 3)
}

func TestBuild_RejectsBadLimits(t *testing.T) {
	cfg := config.Config{
		OpenAIAPIKey:    "sk-test",
		ConversationTTL: time.Minute,
	}
	_, err := Build(context.Background(), cfg, nil)
	require.ErrorContains(t, err, "limits must be positive")
}
