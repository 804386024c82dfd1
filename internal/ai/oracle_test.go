package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/skalibog/dstrade/internal/config"
	"github.com/skalibog/dstrade/pkg/models"
)

func testAiConfig(url string) config.AiConfig {
	return config.AiConfig{
		Provider:       "deepseek",
		APIURL:         url,
		APIKey:         "test-key",
		Model:          "deepseek-chat",
		TimeoutSeconds: 5,
		RetryAttempts:  3,
	}
}

func chatReply(t *testing.T, w http.ResponseWriter, content string) {
	t.Helper()
	reply := map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]interface{}{"content": content}},
		},
	}
	if err := json.NewEncoder(w).Encode(reply); err != nil {
		t.Fatal(err)
	}
}

func testPayload() map[string]interface{} {
	return map[string]interface{}{
		"symbol":          "BTCUSDT",
		"direction":       "long",
		"unrealized_pnl":  12.5,
		"holding_minutes": 40.0,
	}
}

func TestDeepSeekEvaluate(t *testing.T) {
	var gotAuth string
	var gotReq chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Error(err)
		}
		chatReply(t, w, `{"action":"take_profit","reason":"цель достигнута","risk_level":"low","confidence":0.8}`)
	}))
	defer server.Close()

	client := NewDeepSeekClient(testAiConfig(server.URL))
	eval, err := client.Evaluate(context.Background(), testPayload())
	if err != nil {
		t.Fatal(err)
	}

	if eval.Action != models.ActionTakeProfit {
		t.Errorf("action = %s", eval.Action)
	}
	if eval.RiskLevel != "low" || eval.Confidence != 0.8 {
		t.Errorf("risk/confidence = %s/%f", eval.RiskLevel, eval.Confidence)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("заголовок авторизации = %q", gotAuth)
	}
	if gotReq.ResponseFormat.Type != "json_object" {
		t.Errorf("response_format = %q", gotReq.ResponseFormat.Type)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" {
		t.Errorf("сообщения запроса: %+v", gotReq.Messages)
	}
}

// Неизвестное действие трактуется как hold
func TestDeepSeekUnknownAction(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		chatReply(t, w, `{"action":"panic_sell","reason":"?","risk_level":"high","confidence":0.4}`)
	}))
	defer server.Close()

	client := NewDeepSeekClient(testAiConfig(server.URL))
	eval, err := client.Evaluate(context.Background(), testPayload())
	if err != nil {
		t.Fatal(err)
	}
	if eval.Action != models.ActionHold {
		t.Errorf("неизвестное действие должно стать hold, получено %s", eval.Action)
	}
}

func TestDeepSeekRetriesThenUnavailable(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "internal", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewDeepSeekClient(testAiConfig(server.URL))
	client.retryMin = time.Millisecond

	_, err := client.Evaluate(context.Background(), testPayload())
	if !errors.Is(err, models.ErrOracleUnavailable) {
		t.Fatalf("ожидался ErrOracleUnavailable, получено %v", err)
	}
	if calls != 3 {
		t.Errorf("ожидалось 3 попытки, сделано %d", calls)
	}
}

func TestDeepSeekRecoversOnRetry(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "busy", http.StatusTooManyRequests)
			return
		}
		chatReply(t, w, `{"action":"hold","reason":"держим","risk_level":"low","confidence":0.6}`)
	}))
	defer server.Close()

	client := NewDeepSeekClient(testAiConfig(server.URL))
	client.retryMin = time.Millisecond

	eval, err := client.Evaluate(context.Background(), testPayload())
	if err != nil {
		t.Fatal(err)
	}
	if eval.Action != models.ActionHold {
		t.Errorf("action = %s", eval.Action)
	}
	if calls != 2 {
		t.Errorf("ожидалось 2 вызова, сделано %d", calls)
	}
}

func TestSyntheticOracle(t *testing.T) {
	oracle := NewSyntheticOracle()

	cases := []struct {
		pnl     float64
		holding float64
		want    models.AiAction
	}{
		{20, 45, models.ActionTakeProfit},
		{-20, 90, models.ActionStopLoss},
		{-20, 10, models.ActionHold},
		{5, 10, models.ActionHold},
	}
	for _, c := range cases {
		eval, err := oracle.Evaluate(context.Background(), map[string]interface{}{
			"unrealized_pnl":  c.pnl,
			"holding_minutes": c.holding,
		})
		if err != nil {
			t.Fatal(err)
		}
		if eval.Action != c.want {
			t.Errorf("pnl %f / %f мин: action = %s, ожидалось %s",
				c.pnl, c.holding, eval.Action, c.want)
		}
	}
}
