package judge_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pricecheck-service/internal/domain"
	"pricecheck-service/internal/infrastructure/judge"

	"github.com/stretchr/testify/require"
)

func completion(content string) string {
	b, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]string{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
		"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
	})
	return string(b)
}

func sampleContext() domain.VerificationContext {
	entry, target := 100.0, 120.0
	day := func(s string) time.Time { d, _ := domain.ParseDay(s); return d }
	return domain.VerificationContext{
		Prediction: domain.Prediction{
			ID:           "p1",
			Asset:        "AAPL",
			Sentiment:    domain.SentimentBullish,
			EntryPrice:   &entry,
			TargetPrice:  &target,
			HorizonValue: "yıl ortası",
			PostDate:     day("2025-01-10"),
			Transcript:   "haziran sonuna kadar 120 dolar",
		},
		Window:  domain.NewHorizonWindow(day("2025-01-10"), day("2025-02-10")),
		Outcome: domain.Pending(),
		History: []domain.PricePoint{{Date: day("2025-01-10"), Price: 100}},
		BuiltAt: day("2025-03-01"),
	}
}

func TestOpenAI_Judge(t *testing.T) {
	var seen map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &seen))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completion(`{"status":"pending","confidence":0.82,"reasoning":"speaker said end of June","corrected_horizon":{"start":"2025-01-10","end":"2025-06-30"},"evidence":["haziran sonuna kadar"]}`))
	}))
	t.Cleanup(srv.Close)

	j, err := judge.NewOpenAI("sk-test", "gpt-4o-mini", judge.WithBaseURL(srv.URL+"/v1"))
	require.NoError(t, err)

	got, err := j.Judge(context.Background(), sampleContext())
	require.NoError(t, err)
	require.Equal(t, domain.StatusPending, got.Status)
	require.InDelta(t, 0.82, got.Confidence, 1e-9)
	require.NotNil(t, got.CorrectedHorizon)
	require.Equal(t, "2025-06-30", domain.DayKey(got.CorrectedHorizon.End))
	require.Equal(t, []string{"haziran sonuna kadar"}, got.Evidence)

	require.Equal(t, "gpt-4o-mini", seen["model"])
	msgs := seen["messages"].([]any)
	require.Len(t, msgs, 2)
	user := msgs[1].(map[string]any)["content"].(string)
	require.True(t, strings.Contains(user, `"asset":"AAPL"`))
	require.True(t, strings.Contains(user, `"2025-01-10":100`))
}

func TestOpenAI_Throttled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"message":"rate limited","type":"requests","code":"rate_limit_exceeded"}}`)
	}))
	t.Cleanup(srv.Close)

	j, err := judge.NewOpenAI("sk-test", "", judge.WithBaseURL(srv.URL+"/v1"))
	require.NoError(t, err)
	_, err = j.Judge(context.Background(), sampleContext())
	require.ErrorIs(t, err, domain.ErrThrottled)
}

func TestNewOpenAI_MissingKey(t *testing.T) {
	_, err := judge.NewOpenAI("", "gpt-4o-mini")
	require.ErrorIs(t, err, domain.ErrMissingCredentials)
}

func TestParseJudgment(t *testing.T) {
	got, err := judge.ParseJudgment("```json\n{\"status\":\"CORRECT\",\"confidence\":1.7}\n```")
	require.NoError(t, err)
	require.Equal(t, domain.StatusCorrect, got.Status)
	require.Equal(t, 1.0, got.Confidence)
	require.Nil(t, got.CorrectedHorizon)

	got, err = judge.ParseJudgment(`{"status":"maybe","confidence":-1,"corrected_horizon":{"start":"2025-06-30","end":"2025-01-01"}}`)
	require.NoError(t, err)
	require.Equal(t, domain.StatusPending, got.Status)
	require.Equal(t, 0.0, got.Confidence)
	require.Nil(t, got.CorrectedHorizon)

	_, err = judge.ParseJudgment("not json")
	require.Error(t, err)
}
