package chunker

import (
	"fmt"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is the tiktoken encoding used for production estimates.
const DefaultEncoding = "cl100k_base"

// Estimator measures text in tokens. Implementations must be deterministic,
// non-negative and monotonic in the length of their input.
type Estimator interface {
	Estimate(text string) int
}

// EstimatorFunc adapts a function to Estimator.
type EstimatorFunc func(string) int

// Estimate implements Estimator.
func (f EstimatorFunc) Estimate(text string) int {
	return f(text)
}

// RuneEstimator approximates tokens as ceil(runes / PerToken). The zero value
// counts one token per rune, which over-estimates for latin text and is close
// for CJK text.
type RuneEstimator struct {
	PerToken int
}

// Estimate implements Estimator.
func (r RuneEstimator) Estimate(text string) int {
	n := utf8.RuneCountInString(text)
	per := r.PerToken
	if per <= 1 {
		return n
	}
	return (n + per - 1) / per
}

// TiktokenEstimator counts BPE tokens with a tiktoken encoding.
type TiktokenEstimator struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenEstimator loads the named encoding. Loading may download the BPE
// ranks on first use, so callers usually fall back to RuneEstimator on error.
func NewTiktokenEstimator(encoding string) (*TiktokenEstimator, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load tiktoken encoding %q: %w", encoding, err)
	}
	return &TiktokenEstimator{enc: enc}, nil
}

// Estimate implements Estimator.
func (t *TiktokenEstimator) Estimate(text string) int {
	if text == "" {
		return 0
	}
	return len(t.enc.Encode(text, nil, nil))
}
