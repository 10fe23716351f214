package nlu

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"salonbot/internal/model"

	genai "github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

const extractionInstruction = `You extract booking data for a hair and beauty salon.
Reply with a single JSON object and nothing else:
{"intent": "BOOK|SEARCH|LIST|RESET|GENERIC", "service": string|null, "date": string|null, "shift": string|null, "start_time": string|null}
Rules:
- BOOK: the user wants to book or is answering a booking question.
- SEARCH: the user asks about a specific service (price, duration, what it is).
- LIST: the user asks which services exist.
- RESET: the user wants to start over or cancel the conversation.
- GENERIC: anything else.
- Copy values literally as the user wrote them ("tomorrow", "next tuesday", "10/12", "2pm", "afternoon").
- A field the message does not mention MUST be null. Never repeat values from the current booking.`

// generator is the part of the Gemini model the extractor uses.
type generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// Gemini extracts intents and slots with a Gemini model in JSON mode.
type Gemini struct {
	client   *genai.Client
	extract  generator
	chat     generator
	services func(ctx context.Context) []string
	logger   *zerolog.Logger
}

// NewGemini creates a Gemini-backed extractor. services lists catalog names to put in the prompt.
func NewGemini(ctx context.Context, apiKey, modelName string, services func(ctx context.Context) []string, logger *zerolog.Logger) (*Gemini, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	extract := client.GenerativeModel(modelName)
	extract.ResponseMIMEType = "application/json"
	extract.SetTemperature(0)
	extract.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(extractionInstruction)}}

	chat := client.GenerativeModel(modelName)
	chat.SetTemperature(0.4)
	chat.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(
		"You are the friendly assistant of a hair and beauty salon. Answer briefly. " +
			"For bookings, tell the user to say which service they want.")}}

	l := logger.With().Str("component", "gemini").Logger()
	return &Gemini{client: client, extract: extract, chat: chat, services: services, logger: &l}, nil
}

func (g *Gemini) Close() error {
	return g.client.Close()
}

type geminiExtraction struct {
	Intent    string  `json:"intent"`
	Service   *string `json:"service"`
	Date      *string `json:"date"`
	Shift     *string `json:"shift"`
	StartTime *string `json:"start_time"`
}

// Extract implements Extractor. Model or parse failures degrade to a GENERIC extraction.
func (g *Gemini) Extract(ctx context.Context, req Request) (Extraction, error) {
	prompt := g.buildPrompt(ctx, req)
	text, err := generateText(ctx, g.extract, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return Extraction{}, ctx.Err()
		}
		zerolog.Ctx(ctx).Warn().Err(err).Msg("Gemini extraction failed")
		return Generic(), nil
	}
	ext, err := parseExtraction(text)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("raw", text).Msg("Unparseable extraction")
		return Generic(), nil
	}
	return ext, nil
}

// Reply implements Responder.
func (g *Gemini) Reply(ctx context.Context, history []model.Turn, text string) (string, error) {
	var sb strings.Builder
	for _, t := range history {
		fmt.Fprintf(&sb, "%s: %s\n", t.Role, t.Text)
	}
	fmt.Fprintf(&sb, "user: %s\n", text)
	return generateText(ctx, g.chat, sb.String())
}

func (g *Gemini) buildPrompt(ctx context.Context, req Request) string {
	var sb strings.Builder
	if g.services != nil {
		if names := g.services(ctx); len(names) > 0 {
			fmt.Fprintf(&sb, "Services: %s\n", strings.Join(names, ", "))
		}
	}
	if !req.Today.IsZero() {
		fmt.Fprintf(&sb, "Today: %s (%s)\n", req.Today.Format("2006-01-02"), req.Today.Weekday())
	}
	current, _ := json.Marshal(req.Slots)
	fmt.Fprintf(&sb, "Current booking: %s\n", current)
	if req.Focus != "" {
		fmt.Fprintf(&sb, "The user is answering about %q. If the reply is short, fill %q.\n", req.Focus, req.Focus)
	}
	if len(req.History) > 0 {
		sb.WriteString("Recent conversation:\n")
		for _, t := range req.History {
			fmt.Fprintf(&sb, "%s: %s\n", t.Role, t.Text)
		}
	}
	fmt.Fprintf(&sb, "Message: %s", req.Text)
	return sb.String()
}

func generateText(ctx context.Context, gen generator, prompt string) (string, error) {
	resp, err := gen.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini generate error: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini returned no candidates")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if textPart, ok := part.(genai.Text); ok {
			sb.WriteString(string(textPart))
		}
	}
	return sb.String(), nil
}

func parseExtraction(raw string) (Extraction, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var ge geminiExtraction
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &ge); err != nil {
		return Extraction{}, err
	}
	return Extraction{
		Intent: model.ParseIntent(strings.ToUpper(strings.TrimSpace(ge.Intent))),
		Candidates: Candidates{
			Service:   nonEmpty(ge.Service),
			Date:      nonEmpty(ge.Date),
			Shift:     nonEmpty(ge.Shift),
			StartTime: nonEmpty(ge.StartTime),
		},
	}, nil
}

func nonEmpty(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" || strings.EqualFold(v, "null") {
		return nil
	}
	return &v
}
