package findings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/joelkehle/lucidra-engine/internal/insight"
)

const systemPrompt = "You are a strategy analyst reviewing a Business Model Canvas and a Porter's Five Forces assessment. Report concrete, evidence-backed findings. Respond with strict JSON only."

const maxAttempts = 3

// failureClass buckets a caller error by whether another attempt can help.
type failureClass int

const (
	failureServer failureClass = iota
	failureTimeout
	failureRateLimit
	failureClient
)

func (c failureClass) retryable() bool { return c != failureClient }

type LLMCaller interface {
	GenerateJSON(ctx context.Context, prompt string) (string, error)
}

type AnthropicMessager interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// AnthropicCaller asks a Claude model for a JSON document.
type AnthropicCaller struct {
	client AnthropicMessager
	model  anthropic.Model
}

type AnthropicClientCreator func(apiKey string) AnthropicMessager

var newAnthropicClient AnthropicClientCreator = func(apiKey string) AnthropicMessager {
	c := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &c.Messages
}

func NewAnthropicCaller(client AnthropicMessager) *AnthropicCaller {
	return &AnthropicCaller{client: client, model: anthropic.ModelClaudeSonnet4_20250514}
}

func NewAnthropicCallerFromEnv() (*AnthropicCaller, error) {
	apiKey := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	if apiKey == "" {
		return nil, errors.New("ANTHROPIC_API_KEY not configured")
	}
	return NewAnthropicCaller(newAnthropicClient(apiKey)), nil
}

func (a *AnthropicCaller) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	msg, err := a.client.New(ctx, anthropic.MessageNewParams{
		Model:       a.model,
		MaxTokens:   4096,
		Temperature: anthropic.Float(0),
		System:      []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", err
	}
	parts := make([]string, 0, len(msg.Content))
	for _, block := range msg.Content {
		if block.Type == "text" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, ""), nil
}

// ChatCompleter is the slice of the go-openai client the caller needs.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type OpenAICaller struct {
	client ChatCompleter
	model  string
}

const DefaultOpenAIModel = openai.GPT4oMini

func NewOpenAICaller(client ChatCompleter, model string) *OpenAICaller {
	if strings.TrimSpace(model) == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAICaller{client: client, model: model}
}

// NewOpenAICallerFromEnv reads OPENAI_API_KEY and the optional
// OPENAI_BASE_URL for compatible endpoints.
func NewOpenAICallerFromEnv(model string) (*OpenAICaller, error) {
	apiKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY not configured")
	}
	cfg := openai.DefaultConfig(apiKey)
	if base := strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")); base != "" {
		cfg.BaseURL = base
	}
	return NewOpenAICaller(openai.NewClientWithConfig(cfg), model), nil
}

func (o *OpenAICaller) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
		Temperature:    0,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

type AttemptMetrics struct {
	Attempts       int `json:"attempts"`
	ContentRetries int `json:"content_retries"`
}

// Executor runs one JSON-producing prompt with bounded retries. Transport
// failures back off; bad content is retried with feedback in the prompt.
type Executor struct {
	caller  LLMCaller
	backoff func(attempt int) time.Duration
}

func NewExecutor(caller LLMCaller) *Executor {
	return &Executor{caller: caller, backoff: backoffDelay}
}

func (e *Executor) Run(ctx context.Context, stageName, prompt string, out any, validate func() error) (AttemptMetrics, error) {
	metrics := AttemptMetrics{}
	feedback := ""
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		metrics.Attempts = attempt
		fullPrompt := prompt + "\n\nRespond with only valid JSON matching the schema."
		if feedback != "" {
			fullPrompt += "\n\n" + feedback
		}

		raw, err := e.caller.GenerateJSON(ctx, fullPrompt)
		if err != nil {
			if classify(err).retryable() && attempt < maxAttempts && ctx.Err() == nil {
				if werr := wait(ctx, e.backoff(attempt)); werr != nil {
					return metrics, fmt.Errorf("%s transport failure: %w", stageName, werr)
				}
				continue
			}
			return metrics, fmt.Errorf("%s transport failure: %w", stageName, err)
		}

		raw = strings.TrimSpace(raw)
		if raw == "" {
			if attempt < maxAttempts {
				metrics.ContentRetries++
				feedback = "Your previous response was empty. Respond with valid JSON."
				continue
			}
			return metrics, fmt.Errorf("%s failed: empty response", stageName)
		}

		clean := unfence(raw)
		if err := json.Unmarshal([]byte(clean), out); err != nil {
			if attempt < maxAttempts {
				metrics.ContentRetries++
				feedback = "Your previous response was not valid JSON. Respond with only valid JSON."
				continue
			}
			return metrics, fmt.Errorf("%s failed json parse: %w", stageName, err)
		}
		if err := validate(); err != nil {
			if attempt < maxAttempts {
				metrics.ContentRetries++
				feedback = fmt.Sprintf("Your response failed validation: %s. Fix these issues.", err)
				continue
			}
			return metrics, fmt.Errorf("%s failed validation: %w", stageName, err)
		}
		return metrics, nil
	}
	return metrics, fmt.Errorf("%s failed after retries", stageName)
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// unfence drops a surrounding markdown code fence and its language tag.
func unfence(s string) string {
	s = strings.TrimSpace(s)
	body, ok := strings.CutPrefix(s, "```")
	if !ok {
		return s
	}
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(body), "```"))
}

var statusInMessage = regexp.MustCompile(`(?:^|status(?: code)?\s*[:=]\s*)([1-5]\d\d)\b`)

// classify maps a caller error onto a failure class. Typed SDK errors carry
// their HTTP status; other errors fall back to a status found in the text.
func classify(err error) failureClass {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return failureTimeout
	case errors.Is(err, context.Canceled):
		return failureClient
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return failureTimeout
	}
	if code, ok := httpStatus(err); ok {
		return classifyStatus(code)
	}
	if m := statusInMessage.FindStringSubmatch(strings.ToLower(err.Error())); m != nil {
		code, _ := strconv.Atoi(m[1])
		return classifyStatus(code)
	}
	return failureServer
}

func httpStatus(err error) (int, bool) {
	var oaAPI *openai.APIError
	if errors.As(err, &oaAPI) {
		return oaAPI.HTTPStatusCode, true
	}
	var oaReq *openai.RequestError
	if errors.As(err, &oaReq) {
		return oaReq.HTTPStatusCode, true
	}
	var claude *anthropic.Error
	if errors.As(err, &claude) {
		return claude.StatusCode, true
	}
	return 0, false
}

func classifyStatus(code int) failureClass {
	switch {
	case code == http.StatusTooManyRequests:
		return failureRateLimit
	case code == http.StatusRequestTimeout:
		return failureTimeout
	case code >= 400 && code < 500:
		return failureClient
	default:
		return failureServer
	}
}

// backoffDelay doubles from one second, capped at four.
func backoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := time.Second << (attempt - 1)
	if d > 4*time.Second {
		d = 4 * time.Second
	}
	return d
}

// LLM asks a model for findings about the canvas and forces.
type LLM struct {
	name     string
	executor *Executor
	logger   *zap.Logger
}

func NewLLM(name string, caller LLMCaller, logger *zap.Logger) *LLM {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLM{name: name, executor: NewExecutor(caller), logger: logger}
}

func (l *LLM) Name() string { return l.name }

type llmResponse struct {
	Findings []insight.RawFinding `json:"findings"`
}

func (l *LLM) Fetch(ctx context.Context, req Request) ([]insight.RawFinding, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "findings.llm")
	defer span.End()
	span.SetAttributes(attribute.String("findings.provider", l.name))

	prompt, err := BuildPrompt(req)
	if err != nil {
		return nil, err
	}
	var resp llmResponse
	metrics, err := l.executor.Run(ctx, l.name, prompt, &resp, func() error {
		return checkResponse(resp)
	})
	span.SetAttributes(attribute.Int("llm.attempts", metrics.Attempts), attribute.Int("llm.content_retries", metrics.ContentRetries))
	if err != nil {
		return nil, err
	}
	l.logger.Debug("llm findings received",
		zap.String("provider", l.name),
		zap.Int("findings", len(resp.Findings)),
		zap.Int("attempts", metrics.Attempts))
	out := make([]insight.RawFinding, 0, len(resp.Findings))
	for _, f := range resp.Findings {
		f.Origin = l.name
		if len(f.Sources) == 0 {
			f.Sources = []string{l.name}
		}
		out = append(out, f)
	}
	return out, nil
}

func checkResponse(resp llmResponse) error {
	var problems []string
	for i, f := range resp.Findings {
		if err := f.Check(); err != nil {
			problems = append(problems, fmt.Sprintf("findings[%d]: %v", i, err))
		}
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}
