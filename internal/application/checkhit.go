package application

import "pricecheck-service/internal/domain"

const hitEpsilon = 1e-9

// moveThreshold is the percentage move that counts as a hit when no target
// was given: up for bullish, down (as a positive number) for bearish.
type moveThreshold struct{ up, down float64 }

var moveThresholds = map[domain.AssetClass]moveThreshold{
	domain.AssetClassCrypto:    {up: 10, down: 5},
	domain.AssetClassForex:     {up: 1, down: 1},
	domain.AssetClassStock:     {up: 5, down: 5},
	domain.AssetClassCommodity: {up: 3, down: 3},
	domain.AssetClassMetal:     {up: 3, down: 3},
	domain.AssetClassIndex:     {up: 3, down: 3},
	domain.AssetClassBond:      {up: 1, down: 1},
}

var defaultMoveThreshold = moveThreshold{up: 5, down: 5}

// CheckHit reports whether current satisfies the prediction. With a target
// the comparison is exact (no partial credit); without one the move from
// entry must reach the class threshold. Neutral predictions never hit.
func CheckHit(entry, current float64, target *float64, sentiment domain.Sentiment, class domain.AssetClass) bool {
	if current <= 0 {
		return false
	}
	if target != nil {
		switch sentiment {
		case domain.SentimentBullish:
			return current >= *target-hitEpsilon
		case domain.SentimentBearish:
			return current <= *target+hitEpsilon
		default:
			return false
		}
	}
	if entry <= 0 {
		return false
	}
	th, ok := moveThresholds[class]
	if !ok {
		th = defaultMoveThreshold
	}
	move := (current - entry) / entry * 100
	switch sentiment {
	case domain.SentimentBullish:
		return move >= th.up-hitEpsilon
	case domain.SentimentBearish:
		return -move >= th.down-hitEpsilon
	default:
		return false
	}
}
