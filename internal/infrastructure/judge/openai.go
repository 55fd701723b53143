package judge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"pricecheck-service/internal/domain"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const (
	maxHistoryPoints  = 120
	maxTranscriptRune = 4000
)

const systemPrompt = `You review automated verifications of market predictions made in videos and posts.
You get the prediction, the calendar window it was checked against, the deterministic outcome and the daily prices seen.
Decide whether the window matches what the speaker meant. Only propose corrected_horizon when the transcript or title clearly states a different period.
Answer with one JSON object:
{"status":"correct|wrong|pending","confidence":0.0,"reasoning":"...","corrected_horizon":{"start":"YYYY-MM-DD","end":"YYYY-MM-DD"}|null,"evidence":["..."]}`

// OpenAI asks a chat-completions model for a structured judgment.
type OpenAI struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	log     *zap.Logger
}

type options struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	log        *zap.Logger
}

type Option func(*options)

func WithBaseURL(u string) Option          { return func(o *options) { o.baseURL = u } }
func WithHTTPClient(c *http.Client) Option { return func(o *options) { o.httpClient = c } }
func WithTimeout(d time.Duration) Option   { return func(o *options) { o.timeout = d } }
func WithLogger(l *zap.Logger) Option      { return func(o *options) { o.log = l } }

// NewOpenAI fails with domain.ErrMissingCredentials when apiKey is empty.
func NewOpenAI(apiKey, model string, opts ...Option) (*OpenAI, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai judge: %w", domain.ErrMissingCredentials)
	}
	o := options{timeout: 30 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}
	cfg := openai.DefaultConfig(apiKey)
	if o.baseURL != "" {
		cfg.BaseURL = strings.TrimRight(o.baseURL, "/")
	}
	if o.httpClient != nil {
		cfg.HTTPClient = o.httpClient
	}
	if o.log == nil {
		o.log = zap.NewNop()
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAI{
		client:  openai.NewClientWithConfig(cfg),
		model:   model,
		timeout: o.timeout,
		log:     o.log,
	}, nil
}

func (j *OpenAI) Judge(ctx context.Context, vc domain.VerificationContext) (domain.Judgment, error) {
	prompt, err := buildPrompt(vc)
	if err != nil {
		return domain.Judgment{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	resp, err := j.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       j.model,
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return domain.Judgment{}, fmt.Errorf("openai: %w", domain.ErrThrottled)
		}
		return domain.Judgment{}, fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return domain.Judgment{}, errors.New("openai: empty choices")
	}
	j.log.Debug("judge.completion",
		zap.String("prediction_id", vc.Prediction.ID),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens))
	return ParseJudgment(resp.Choices[0].Message.Content)
}

type promptPrediction struct {
	Asset       string   `json:"asset"`
	AssetType   string   `json:"asset_type,omitempty"`
	Sentiment   string   `json:"sentiment"`
	EntryPrice  *float64 `json:"entry_price,omitempty"`
	TargetPrice *float64 `json:"target_price,omitempty"`
	Horizon     string   `json:"horizon_text"`
	PostDate    string   `json:"post_date"`
	Title       string   `json:"post_title,omitempty"`
	URL         string   `json:"post_url,omitempty"`
	Transcript  string   `json:"transcript,omitempty"`
}

type promptWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type promptOutcome struct {
	Status      string   `json:"status"`
	MetDate     string   `json:"met_date,omitempty"`
	ActualPrice *float64 `json:"actual_price,omitempty"`
}

type promptPayload struct {
	Prediction promptPrediction   `json:"prediction"`
	Window     promptWindow       `json:"window"`
	Outcome    promptOutcome      `json:"outcome"`
	Prices     map[string]float64 `json:"daily_prices"`
	Today      string             `json:"today"`
}

func buildPrompt(vc domain.VerificationContext) (string, error) {
	p := vc.Prediction
	payload := promptPayload{
		Prediction: promptPrediction{
			Asset:       p.Asset,
			AssetType:   string(p.AssetClass),
			Sentiment:   string(p.Sentiment),
			EntryPrice:  p.EntryPrice,
			TargetPrice: p.TargetPrice,
			Horizon:     p.HorizonValue,
			PostDate:    domain.DayKey(p.PostDate),
			Title:       p.Post.Title,
			URL:         p.Post.URL,
			Transcript:  truncateRunes(p.Transcript, maxTranscriptRune),
		},
		Window:  promptWindow{Start: domain.DayKey(vc.Window.Start), End: domain.DayKey(vc.Window.End)},
		Outcome: promptOutcome{Status: string(vc.Outcome.Status), ActualPrice: vc.Outcome.ActualPrice},
		Prices:  map[string]float64{},
		Today:   domain.DayKey(vc.BuiltAt),
	}
	if vc.Outcome.MetDate != nil {
		payload.Outcome.MetDate = domain.DayKey(*vc.Outcome.MetDate)
	}
	history := vc.History
	if len(history) > maxHistoryPoints {
		history = history[len(history)-maxHistoryPoints:]
	}
	for _, pt := range history {
		payload.Prices[domain.DayKey(pt.Date)] = pt.Price
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("judge prompt: %w", err)
	}
	return string(b), nil
}

type rawJudgment struct {
	Status           string  `json:"status"`
	Confidence       float64 `json:"confidence"`
	Reasoning        string  `json:"reasoning"`
	CorrectedHorizon *struct {
		Start string `json:"start"`
		End   string `json:"end"`
	} `json:"corrected_horizon"`
	Evidence []string `json:"evidence"`
}

// ParseJudgment decodes a model answer. Unknown statuses read as pending,
// confidence is clamped to [0, 1] and an unparseable or inverted corrected
// horizon is dropped.
func ParseJudgment(content string) (domain.Judgment, error) {
	content = stripFences(content)
	var raw rawJudgment
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return domain.Judgment{}, fmt.Errorf("decode judgment: %w", err)
	}
	out := domain.Judgment{
		Confidence: min(max(raw.Confidence, 0), 1),
		Reasoning:  strings.TrimSpace(raw.Reasoning),
		Evidence:   raw.Evidence,
	}
	switch domain.VerificationStatus(strings.ToLower(strings.TrimSpace(raw.Status))) {
	case domain.StatusCorrect:
		out.Status = domain.StatusCorrect
	case domain.StatusWrong:
		out.Status = domain.StatusWrong
	default:
		out.Status = domain.StatusPending
	}
	if ch := raw.CorrectedHorizon; ch != nil {
		start, errS := domain.ParseDay(ch.Start)
		end, errE := domain.ParseDay(ch.End)
		if errS == nil && errE == nil {
			w := domain.NewHorizonWindow(start, end)
			if w.Validate() == nil {
				out.CorrectedHorizon = &w
			}
		}
	}
	return out, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
