// Package payment verifies transfer slips. The verifier here is a stand-in
// for a bank slip API: it waits, then succeeds at a fixed rate.
package payment

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

type SlipResult struct {
	Success    bool    `json:"success"`
	TransRef   string  `json:"transRef,omitempty"`
	Amount     float64 `json:"amount,omitempty"`
	SenderName string  `json:"senderName,omitempty"`
}

// Data is what gets stored on the order as verification data.
func (r SlipResult) Data() map[string]any {
	return map[string]any{
		"transRef":   r.TransRef,
		"amount":     r.Amount,
		"senderName": r.SenderName,
	}
}

type Simulator struct {
	Delay       time.Duration
	SuccessRate float64
	SenderName  string

	rnd func() float64
	now func() time.Time
}

func NewSimulator(delay time.Duration, successRate float64) *Simulator {
	return &Simulator{
		Delay:       delay,
		SuccessRate: successRate,
		SenderName:  "Customer (Auto)",
		rnd:         rand.Float64,
		now:         time.Now,
	}
}

// WithSource replaces the randomness and clock, for tests.
func (s *Simulator) WithSource(rnd func() float64, now func() time.Time) *Simulator {
	s.rnd = rnd
	s.now = now
	return s
}

// Verify reports a failure when ctx ends before the delay does.
func (s *Simulator) Verify(ctx context.Context, image string, amount float64) SlipResult {
	if image == "" {
		return SlipResult{}
	}
	if s.Delay > 0 {
		t := time.NewTimer(s.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return SlipResult{}
		case <-t.C:
		}
	}
	if s.rnd() >= s.SuccessRate {
		return SlipResult{}
	}
	return SlipResult{
		Success:    true,
		TransRef:   fmt.Sprintf("TXN%d", s.now().UnixMilli()),
		Amount:     amount,
		SenderName: s.SenderName,
	}
}
