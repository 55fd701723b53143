package domain

import "time"

type Prediction struct {
	ID           string
	Asset        string
	AssetClass   AssetClass
	Sentiment    Sentiment
	EntryPrice   *float64
	TargetPrice  *float64
	HorizonValue string
	HorizonType  HorizonType
	PostDate     time.Time
	Horizon      HorizonWindow
	Outcome      VerificationOutcome
	Post         PostMeta
	Transcript   string
	VerifiedAt   *time.Time
}

// PostMeta describes the published item a prediction was extracted from.
type PostMeta struct {
	Title       string
	URL         string
	Channel     string
	PublishedAt time.Time
}

// PricePoint is one priced day inside a verification window.
type PricePoint struct {
	Date  time.Time
	Price float64
}

// VerificationContext is an immutable snapshot handed to the judge. It is
// rebuilt for every verification pass.
type VerificationContext struct {
	Prediction Prediction
	Window     HorizonWindow
	Outcome    VerificationOutcome
	History    []PricePoint
	BuiltAt    time.Time
}

// Judgment is the structured answer of the AI-assisted reviewer.
type Judgment struct {
	Status           VerificationStatus
	Confidence       float64
	Reasoning        string
	CorrectedHorizon *HorizonWindow
	Evidence         []string
}
