// Package openai implements gateway.Generator over the OpenAI chat
// completions API, including vision inputs and incremental streaming.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/finagent/invoiceflow/internal/gateway"
)

// Client is an OpenAI-backed Generator.
type Client struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	logger      *zap.Logger
}

// Config holds generation settings.
type Config struct {
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
}

// NewClient creates a new OpenAI generator.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	return &Client{
		client:      openai.NewClient(cfg.APIKey),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		logger:      logger,
	}
}

// Generate issues one non-streaming request and returns the full text.
func (c *Client) Generate(ctx context.Context, req gateway.Request) (string, error) {
	chatReq := c.buildRequest(req)

	resp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		c.logger.Error("OpenAI API call failed", zap.Error(err))
		return "", fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from OpenAI")
	}

	return resp.Choices[0].Message.Content, nil
}

// GenerateStream issues one streaming request, forwarding every chunk to fn
// and returning the accumulated transcript.
func (c *Client) GenerateStream(ctx context.Context, req gateway.Request, fn gateway.ChunkFunc) (string, error) {
	chatReq := c.buildRequest(req)
	chatReq.Stream = true

	stream, err := c.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		c.logger.Error("OpenAI stream call failed", zap.Error(err))
		return "", fmt.Errorf("OpenAI stream call failed: %w", err)
	}
	defer stream.Close()

	var transcript strings.Builder
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			c.logger.Error("OpenAI stream receive failed", zap.Error(err))
			return transcript.String(), fmt.Errorf("OpenAI stream receive failed: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		chunk := resp.Choices[0].Delta.Content
		if chunk == "" {
			continue
		}
		transcript.WriteString(chunk)
		if fn != nil {
			fn(chunk)
		}
	}

	return transcript.String(), nil
}

// buildRequest translates a gateway request into a chat completion request,
// attaching the image as a data-URI part when present.
func (c *Client) buildRequest(req gateway.Request) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, 2)

	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}

	if req.Image != nil {
		messages = append(messages, openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{
					Type: openai.ChatMessagePartTypeText,
					Text: req.Prompt,
				},
				{
					Type: openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{
						URL:    fmt.Sprintf("data:%s;base64,%s", req.Image.MIMEType, req.Image.Base64),
						Detail: openai.ImageURLDetailHigh,
					},
				},
			},
		})
	} else {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: req.Prompt,
		})
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		Messages:    messages,
	}

	if req.JSONResponse {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	return chatReq
}
