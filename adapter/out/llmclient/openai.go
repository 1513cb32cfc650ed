// Package llmclient adapts github.com/sashabaranov/go-openai to
// core/port/out.LLMClient and out.EmbeddingClient, with calls wrapped
// in a circuit breaker per collaborator.
package llmclient

import (
	"context"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"

	"github.com/kodelabs/mailrouter/core/port/out"
	"github.com/kodelabs/mailrouter/pkg/resilience"
)

// Adapter implements both out.LLMClient and out.EmbeddingClient over a
// single OpenAI-compatible client, since both collaborators front the
// same provider in this pipeline.
type Adapter struct {
	client        *openai.Client
	completionCB  *gobreaker.CircuitBreaker
	embeddingCB   *gobreaker.CircuitBreaker
}

func NewAdapter(apiKey string) *Adapter {
	return &Adapter{
		client:       openai.NewClient(apiKey),
		completionCB: resilience.New(resilience.DefaultConfig("llm.complete")),
		embeddingCB:  resilience.New(resilience.DefaultConfig("llm.embed")),
	}
}

func (a *Adapter) Complete(ctx context.Context, systemPrompt, userPrompt, model string) (string, error) {
	return resilience.ExecuteTimed(a.completionCB, "llm.complete", func() (string, error) {
		resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: userPrompt},
			},
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
		})
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", nil
		}
		return resp.Choices[0].Message.Content, nil
	})
}

func (a *Adapter) Embed(ctx context.Context, texts []string, model string) ([][]float32, error) {
	return resilience.ExecuteTimed(a.embeddingCB, "llm.embed", func() ([][]float32, error) {
		resp, err := a.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Model: embeddingModelFor(model),
			Input: texts,
		})
		if err != nil {
			return nil, err
		}
		vectors := make([][]float32, len(resp.Data))
		for i, d := range resp.Data {
			vectors[i] = d.Embedding
		}
		return vectors, nil
	})
}

// embeddingModelFor maps a configured model name onto go-openai's
// EmbeddingModel enum; unrecognized names fall back to the current
// generation small embedding model rather than an invalid zero value.
func embeddingModelFor(name string) openai.EmbeddingModel {
	switch name {
	case "text-embedding-3-large":
		return openai.LargeEmbedding3
	case "text-embedding-ada-002":
		return openai.AdaEmbeddingV2
	default:
		return openai.SmallEmbedding3
	}
}

var _ out.LLMClient = (*Adapter)(nil)
var _ out.EmbeddingClient = (*Adapter)(nil)
