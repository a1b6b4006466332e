package model

// ConfidenceLevel is the discrete confidence bucket.
type ConfidenceLevel string

const (
	ConfidenceLow    ConfidenceLevel = "low"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceHigh   ConfidenceLevel = "high"
)

// FallbackStrategy names the response used below the confidence threshold.
type FallbackStrategy string

const (
	FallbackLowRetrievalConfidence FallbackStrategy = "low_retrieval_confidence"
	FallbackNoRelevantSources      FallbackStrategy = "no_relevant_sources"
	FallbackPoorCitationQuality    FallbackStrategy = "poor_citation_quality"
	FallbackQueryAmbiguity         FallbackStrategy = "query_ambiguity"
)

// ComponentScores holds the four component scores in [0,1].
// A nil pointer marks a component that could not be measured.
type ComponentScores struct {
	Retrieval  *float64 `json:"retrieval,omitempty"`
	Content    *float64 `json:"content,omitempty"`
	Context    *float64 `json:"context,omitempty"`
	Generation *float64 `json:"generation,omitempty"`
}

// FallbackResponse is the caller facing replacement for a low confidence answer.
type FallbackResponse struct {
	Strategy    FallbackStrategy `json:"strategy"`
	Message     string           `json:"message"`
	Confidence  float64          `json:"confidence"`
	Suggestions []string         `json:"suggestions,omitempty"`
}

// ConfidenceAssessment is the combined confidence of a response.
type ConfidenceAssessment struct {
	Components ComponentScores   `json:"components"`
	Score      float64           `json:"score"`
	Level      ConfidenceLevel   `json:"level"`
	Issues     []string          `json:"issues,omitempty"`
	Fallback   *FallbackResponse `json:"fallback,omitempty"`
}
