package analysis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ewilliams-labs/widdle/internal/core/domain"
)

// scriptedClient answers by system prompt. A prompt listed in fail returns
// ErrInferenceUnavailable; one listed in hang blocks until ctx is done.
type scriptedClient struct {
	mu        sync.Mutex
	responses map[string]string
	fail      map[string]int // remaining failures per prompt, -1 for always
	hang      map[string]bool
	calls     []string
	delay     time.Duration
}

func newScriptedClient() *scriptedClient {
	return &scriptedClient{
		responses: map[string]string{
			genreSystemPrompt:         "Rock, Pop",
			moodSystemPrompt:          "Happy, Energetic",
			tempoSystemPrompt:         "120",
			keySystemPrompt:           "C major",
			timeSignatureSystemPrompt: "4/4",
		},
		fail: map[string]int{},
		hang: map[string]bool{},
	}
}

func (c *scriptedClient) Infer(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	c.mu.Lock()
	c.calls = append(c.calls, systemPrompt)
	hang := c.hang[systemPrompt]
	remaining := c.fail[systemPrompt]
	if remaining > 0 {
		c.fail[systemPrompt] = remaining - 1
	}
	resp := c.responses[systemPrompt]
	delay := c.delay
	c.mu.Unlock()

	if hang {
		<-ctx.Done()
		return "", fmt.Errorf("%w: %w", domain.ErrInferenceUnavailable, ctx.Err())
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	if remaining != 0 {
		return "", fmt.Errorf("%w: scripted failure", domain.ErrInferenceUnavailable)
	}
	return resp, nil
}

func (c *scriptedClient) callsFor(systemPrompt string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, p := range c.calls {
		if p == systemPrompt {
			n++
		}
	}
	return n
}

func (c *scriptedClient) callOrder() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

var stagePrompts = map[domain.Attribute]string{
	domain.AttributeGenre:         genreSystemPrompt,
	domain.AttributeMood:          moodSystemPrompt,
	domain.AttributeTempo:         tempoSystemPrompt,
	domain.AttributeKey:           keySystemPrompt,
	domain.AttributeTimeSignature: timeSignatureSystemPrompt,
}

func sampleMetadata() domain.AudioMetadata {
	return domain.AudioMetadata{
		Title:           domain.StringPtr("Song"),
		Artist:          domain.StringPtr("Band"),
		DurationSeconds: 215.4,
		Format:          map[string]any{"fileType": "MP3"},
	}
}
