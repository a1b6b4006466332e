package pipeline

import (
	"fmt"
	"math"

	"github.com/pkoukk/tiktoken-go"
	"github.com/siherrmann/grounder/helper"
)

// TokensPerWord is the word to token ratio of the approximate counter.
const TokensPerWord = 1.33

const (
	TokenizerApproximate = "approximate"
	TokenizerTiktoken    = "tiktoken"
)

// ApproximateCounter estimates tokens as ceil(words * 1.33).
type ApproximateCounter struct{}

// Count returns the approximate token count of text.
func (ApproximateCounter) Count(text string) int {
	words := helper.CountWords(text)
	if words == 0 {
		return 0
	}
	return int(math.Ceil(float64(words) * TokensPerWord))
}

// TiktokenCounter counts exact BPE tokens.
type TiktokenCounter struct {
	encoding *tiktoken.Tiktoken
}

// NewTiktokenCounter loads the named BPE encoding, e.g. "cl100k_base".
func NewTiktokenCounter(encoding string) (*TiktokenCounter, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, helper.NewError("load tiktoken encoding", err)
	}
	return &TiktokenCounter{encoding: enc}, nil
}

// Count returns the exact token count of text.
func (c *TiktokenCounter) Count(text string) int {
	return len(c.encoding.Encode(text, nil, nil))
}

// NewTokenCounter returns the counter configured by name.
func NewTokenCounter(name string) (TokenCounter, error) {
	switch name {
	case "", TokenizerApproximate:
		return ApproximateCounter{}, nil
	case TokenizerTiktoken:
		return NewTiktokenCounter("cl100k_base")
	default:
		return nil, fmt.Errorf("unknown tokenizer %q", name)
	}
}
