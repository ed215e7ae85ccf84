package analysis

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ewilliams-labs/widdle/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func fastPolicy() StagePolicy {
	return StagePolicy{Timeout: time.Second, Attempts: 1, Backoff: time.Millisecond}
}

func TestAnalyzers_HappyPath(t *testing.T) {
	client := newScriptedClient()
	log := zap.NewNop()
	ctx := context.Background()
	md := sampleMetadata()

	assert.Equal(t, []string{"Rock", "Pop"}, NewGenreAnalyzer(client, fastPolicy(), log).Analyze(ctx, md))
	assert.Equal(t, []string{"Happy", "Energetic"}, NewMoodAnalyzer(client, fastPolicy(), log).Analyze(ctx, md))
	assert.Equal(t, 120, NewTempoAnalyzer(client, fastPolicy(), log).Analyze(ctx, md))
	assert.Equal(t, "C major", NewKeyAnalyzer(client, fastPolicy(), log).Analyze(ctx, md))
	assert.Equal(t, "4/4", NewTimeSignatureAnalyzer(client, fastPolicy(), log).Analyze(ctx, md))
}

func TestAnalyzer_UserPromptEmbedsMetadata(t *testing.T) {
	a := NewKeyAnalyzer(newScriptedClient(), fastPolicy(), zap.NewNop())

	prompt, err := a.userPrompt(sampleMetadata())
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(prompt, "Analyze this audio metadata and suggest the musical key: {"))
	assert.Contains(t, prompt, `"title":"Song"`)
	assert.Contains(t, prompt, `"durationSeconds":215.4`)
}

func TestAnalyzer_FailureYieldsSafeDefaultAndLogs(t *testing.T) {
	client := newScriptedClient()
	client.fail[genreSystemPrompt] = -1
	client.fail[tempoSystemPrompt] = -1
	client.fail[keySystemPrompt] = -1
	log, recorded := logger.NewTestLogger()
	ctx := context.Background()

	genres := NewGenreAnalyzer(client, fastPolicy(), log).Analyze(ctx, sampleMetadata())
	assert.NotNil(t, genres)
	assert.Empty(t, genres)
	assert.Equal(t, 0, NewTempoAnalyzer(client, fastPolicy(), log).Analyze(ctx, sampleMetadata()))
	assert.Equal(t, "", NewKeyAnalyzer(client, fastPolicy(), log).Analyze(ctx, sampleMetadata()))

	warnings := recorded.FilterLevelExact(zapcore.WarnLevel).FilterMessage("analysis: inference failed, using safe default")
	assert.Equal(t, 3, warnings.Len())
}

func TestAnalyzer_UnparseableTempo(t *testing.T) {
	client := newScriptedClient()
	client.responses[tempoSystemPrompt] = "approximately 120"
	log, recorded := logger.NewTestLogger()

	got := NewTempoAnalyzer(client, fastPolicy(), log).Analyze(context.Background(), sampleMetadata())

	assert.Equal(t, 0, got)
	entries := recorded.FilterMessage("analysis: unparseable response, using safe default").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "tempo", entries[0].ContextMap()["attribute"])
}

func TestAnalyzer_TimeoutIsFailure(t *testing.T) {
	client := newScriptedClient()
	client.hang[keySystemPrompt] = true
	policy := StagePolicy{Timeout: 20 * time.Millisecond, Attempts: 1}

	start := time.Now()
	got := NewKeyAnalyzer(client, policy, zap.NewNop()).Analyze(context.Background(), sampleMetadata())

	assert.Equal(t, "", got)
	assert.Less(t, time.Since(start), time.Second)
}

func TestAnalyzer_Retry(t *testing.T) {
	tests := []struct {
		name      string
		failures  int
		attempts  int
		wantKey   string
		wantCalls int
	}{
		{name: "single attempt fails", failures: 1, attempts: 1, wantKey: "", wantCalls: 1},
		{name: "recovers on second attempt", failures: 1, attempts: 2, wantKey: "C major", wantCalls: 2},
		{name: "recovers on third attempt", failures: 2, attempts: 3, wantKey: "C major", wantCalls: 3},
		{name: "exhausts attempts", failures: 5, attempts: 3, wantKey: "", wantCalls: 3},
		{name: "zero attempts means one", failures: 0, attempts: 0, wantKey: "C major", wantCalls: 1},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			client := newScriptedClient()
			client.fail[keySystemPrompt] = tt.failures
			policy := StagePolicy{Timeout: time.Second, Attempts: tt.attempts, Backoff: time.Millisecond}

			got := NewKeyAnalyzer(client, policy, zap.NewNop()).Analyze(context.Background(), sampleMetadata())

			assert.Equal(t, tt.wantKey, got)
			assert.Equal(t, tt.wantCalls, client.callsFor(keySystemPrompt))
		})
	}
}

func TestSleepWithContext_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := sleepWithContext(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoError(t, sleepWithContext(context.Background(), 0))
}
