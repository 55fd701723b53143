package domain

import (
	"strings"
	"time"
)

type Sentiment string

const (
	SentimentBullish Sentiment = "bullish"
	SentimentBearish Sentiment = "bearish"
	SentimentNeutral Sentiment = "neutral"
)

func ParseSentiment(s string) Sentiment {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bullish", "bull", "long", "up", "yukselis", "yükseliş":
		return SentimentBullish
	case "bearish", "bear", "short", "down", "dusus", "düşüş":
		return SentimentBearish
	default:
		return SentimentNeutral
	}
}

type VerificationStatus string

const (
	StatusPending VerificationStatus = "pending"
	StatusCorrect VerificationStatus = "correct"
	StatusWrong   VerificationStatus = "wrong"
)

// VerificationOutcome: Status is StatusCorrect exactly when MetDate and
// ActualPrice are both set.
type VerificationOutcome struct {
	Status      VerificationStatus
	MetDate     *time.Time
	ActualPrice *float64
}

func Pending() VerificationOutcome { return VerificationOutcome{Status: StatusPending} }

func Correct(day time.Time, price float64) VerificationOutcome {
	d := Day(day)
	return VerificationOutcome{Status: StatusCorrect, MetDate: &d, ActualPrice: &price}
}

// Wrong attaches finalPrice only when it is a usable positive price.
func Wrong(finalPrice float64) VerificationOutcome {
	out := VerificationOutcome{Status: StatusWrong}
	if finalPrice > 0 {
		out.ActualPrice = &finalPrice
	}
	return out
}
