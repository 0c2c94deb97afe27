package main

import (
	"context"
	"fmt"
	"log"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicModel = "claude-sonnet-4-5-20250929"

const insightsSystemPrompt = `You summarize a voice assistant usage audit for the account owner.
The report lists total utterances, how many were excluded as short, system-generated
or duplicated, the estimated valid usage, and a per-device breakdown.
Write a short plain-language summary (a few sentences): overall usage level,
which devices are actually used, and anything notable about the exclusions.
Do not repeat the raw numbers line by line.`

// buildInsights asks the LLM for a plain-language reading of a generated
// report. The deterministic report itself never goes through the LLM; this
// is a purely additive convenience on top of it.
func buildInsights(cfg Config, report string) (string, error) {
	model := cfg.LLMModel
	if model == "" {
		model = defaultAnthropicModel
	}
	client := anthropic.NewClient(option.WithAPIKey(cfg.AnthropicAPIKey))

	log.Printf("llm insights model=%s report_bytes=%d", model, len(report))
	message, err := client.Messages.New(context.Background(), anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: 1024,
		System: []anthropic.TextBlockParam{
			{Text: insightsSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(report)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("Anthropic API error: %w", err)
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			log.Printf("llm insights response size=%d tokens_in=%d tokens_out=%d",
				len(block.Text), message.Usage.InputTokens, message.Usage.OutputTokens)
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("no text content in Anthropic response")
}
