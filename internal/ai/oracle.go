package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jpillora/backoff"
	"go.uber.org/zap"

	"github.com/skalibog/dstrade/internal/config"
	"github.com/skalibog/dstrade/pkg/logger"
	"github.com/skalibog/dstrade/pkg/models"
)

// Oracle дает вердикт по открытой позиции на основе рыночного контекста
type Oracle interface {
	Evaluate(ctx context.Context, payload map[string]interface{}) (*models.AiEvaluation, error)
}

// NewOracle создает оракула по типу провайдера из конфигурации
func NewOracle(cfg config.AiConfig) (Oracle, error) {
	switch cfg.Provider {
	case "deepseek":
		return NewDeepSeekClient(cfg), nil
	case "synthetic":
		return NewSyntheticOracle(), nil
	default:
		return nil, fmt.Errorf("неизвестный провайдер AI: %s", cfg.Provider)
	}
}

const systemPrompt = `You are a disciplined crypto swing-trading assistant. ` +
	`You receive a JSON snapshot of an open futures position and current market indicators. ` +
	`Decide whether the position should be held or closed. ` +
	`Respond with a JSON object containing: action (one of "hold", "close", "take_profit", "stop_loss"), ` +
	`reason (short explanation), risk_level (low|medium|high), confidence (0.0-1.0).`

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature"`
	ResponseFormat responseFormat `json:"response_format"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type verdict struct {
	Action     string  `json:"action"`
	Reason     string  `json:"reason"`
	RiskLevel  string  `json:"risk_level"`
	Confidence float64 `json:"confidence"`
}

// DeepSeekClient ходит в chat-completions API DeepSeek и разбирает
// структурированный вердикт по позиции
type DeepSeekClient struct {
	cfg      config.AiConfig
	client   *http.Client
	retryMin time.Duration
}

func NewDeepSeekClient(cfg config.AiConfig) *DeepSeekClient {
	return &DeepSeekClient{
		cfg: cfg,
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
		retryMin: time.Second,
	}
}

// Evaluate отправляет снимок позиции и возвращает нормализованный вердикт.
// После исчерпания попыток возвращает ErrOracleUnavailable.
func (c *DeepSeekClient) Evaluate(ctx context.Context, payload map[string]interface{}) (*models.AiEvaluation, error) {
	userContent, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации контекста: %w", err)
	}

	reqBody := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: string(userContent)},
		},
		Temperature:    0.2,
		ResponseFormat: responseFormat{Type: "json_object"},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации запроса: %w", err)
	}

	b := &backoff.Backoff{
		Min:    c.retryMin,
		Max:    30 * time.Second,
		Factor: 2,
		Jitter: true,
	}

	attempts := c.cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(b.Duration()):
			}
		}

		eval, err := c.doRequest(ctx, body)
		if err == nil {
			return eval, nil
		}
		lastErr = err
		logger.Warn("Запрос к AI не удался",
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}

	return nil, fmt.Errorf("AI недоступен после %d попыток: %v: %w",
		attempts, lastErr, models.ErrOracleUnavailable)
}

func (c *DeepSeekClient) doRequest(ctx context.Context, body []byte) (*models.AiEvaluation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ошибка создания запроса: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса к AI: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения ответа: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("AI вернул статус %d: %s", resp.StatusCode, string(raw))
	}

	var chat chatResponse
	if err := json.Unmarshal(raw, &chat); err != nil {
		return nil, fmt.Errorf("ошибка разбора ответа: %w", err)
	}
	if chat.Error != nil {
		return nil, fmt.Errorf("ошибка AI: %s", chat.Error.Message)
	}
	if len(chat.Choices) == 0 {
		return nil, fmt.Errorf("AI вернул пустой ответ")
	}

	content := chat.Choices[0].Message.Content
	var v verdict
	if err := json.Unmarshal([]byte(content), &v); err != nil {
		return nil, fmt.Errorf("ошибка разбора вердикта: %w", err)
	}

	return &models.AiEvaluation{
		Action:      models.NormalizeAiAction(v.Action),
		Reason:      v.Reason,
		RiskLevel:   v.RiskLevel,
		Confidence:  v.Confidence,
		RawResponse: []byte(content),
		Timestamp:   time.Now(),
	}, nil
}
