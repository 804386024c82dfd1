package ai

import (
	"context"
	"encoding/json"
	"time"

	"github.com/skalibog/dstrade/pkg/models"
)

// SyntheticOracle — офлайновая замена AI для работы без API-ключа.
// Решение принимается по знаку и величине нереализованного PnL.
type SyntheticOracle struct{}

func NewSyntheticOracle() *SyntheticOracle {
	return &SyntheticOracle{}
}

func (s *SyntheticOracle) Evaluate(_ context.Context, payload map[string]interface{}) (*models.AiEvaluation, error) {
	pnl, _ := payload["unrealized_pnl"].(float64)
	holding, _ := payload["holding_minutes"].(float64)

	action := models.ActionHold
	reason := "позиция в допустимых пределах, держим"
	riskLevel := "low"
	confidence := 0.6

	switch {
	case pnl > 0 && holding > 30:
		action = models.ActionTakeProfit
		reason = "прибыль накоплена, фиксируем"
		confidence = 0.7
	case pnl < 0 && holding > 60:
		action = models.ActionStopLoss
		reason = "убыток затянулся, режем"
		riskLevel = "high"
		confidence = 0.7
	case pnl < 0:
		riskLevel = "medium"
	}

	raw, _ := json.Marshal(map[string]interface{}{
		"action": string(action), "reason": reason,
		"risk_level": riskLevel, "confidence": confidence,
	})

	return &models.AiEvaluation{
		Action:      action,
		Reason:      reason,
		RiskLevel:   riskLevel,
		Confidence:  confidence,
		RawResponse: raw,
		Timestamp:   time.Now(),
	}, nil
}
