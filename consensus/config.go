package consensus

import (
	"time"

	"github.com/pkg/errors"
)

// Config holds the QR-Avalanche tunables. Every field is explicit; there are
// no hidden defaults and the zero value does not validate. Alpha (per-round
// vote fraction) and Beta (consecutive successful rounds) are independent
// knobs, not derived from one another.
type Config struct {
	// QuerySampleSize is the number of participants sampled per round (k).
	QuerySampleSize int
	// Alpha is the fraction of responses that must prefer a vertex for the
	// round to count as successful, in (0, 1].
	Alpha float64
	// Beta is the number of consecutive successful rounds required before a
	// vertex becomes eligible for finality.
	Beta uint64
	// ConfirmationDepth is the minimum descendant count a vertex needs
	// before it may finalize, an independent safety margin on top of Beta.
	ConfirmationDepth int
	// FinalityTimeout bounds a single voting round. Rounds that exceed it
	// are abandoned and retried on the next scheduling tick.
	FinalityTimeout time.Duration
}

// FastFinalityConfig trades safety margin for latency.
func FastFinalityConfig() Config {
	return Config{
		QuerySampleSize:   15,
		Alpha:             0.55,
		Beta:              2,
		ConfirmationDepth: 0,
		FinalityTimeout:   50 * time.Millisecond,
	}
}

// HighSecurityConfig trades latency for safety margin.
func HighSecurityConfig() Config {
	return Config{
		QuerySampleSize:   30,
		Alpha:             0.8,
		Beta:              6,
		ConfirmationDepth: 3,
		FinalityTimeout:   200 * time.Millisecond,
	}
}

func (c Config) Validate() error {
	if c.QuerySampleSize <= 0 {
		return errors.Errorf("query sample size must be positive, got %d", c.QuerySampleSize)
	}
	if c.Alpha <= 0 || c.Alpha > 1 {
		return errors.Errorf("alpha must be in (0, 1], got %f", c.Alpha)
	}
	if c.Beta == 0 {
		return errors.New("beta must be positive")
	}
	if c.ConfirmationDepth < 0 {
		return errors.Errorf("confirmation depth must not be negative, got %d", c.ConfirmationDepth)
	}
	if c.FinalityTimeout <= 0 {
		return errors.Errorf("finality timeout must be positive, got %s", c.FinalityTimeout)
	}
	return nil
}
