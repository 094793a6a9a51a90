package gate

import (
	"context"
	"errors"
	"image"
	"io"
)

// FrameSource yields frames one at a time. Next blocks until a frame is
// available and returns io.EOF when the source has ended.
type FrameSource interface {
	Next(ctx context.Context) (image.Image, error)
}

// Session is a single-shot capture session: once a frame is accepted it
// refuses further frames.
type Session struct {
	gate     *Gate
	accepted image.Image
	attempts int
}

// NewSession starts a capture session on g.
func NewSession(g *Gate) *Session {
	return &Session{gate: g}
}

// Offer evaluates a candidate frame. After an accepted frame every call returns ErrSessionClosed.
func (s *Session) Offer(ctx context.Context, img image.Image) (Evaluation, error) {
	if s.accepted != nil {
		return Evaluation{State: Rejected, Reason: "session closed"}, ErrSessionClosed
	}
	s.attempts++
	ev, err := s.gate.Evaluate(ctx, img)
	if err != nil {
		return ev, err
	}
	if ev.State == Accepted {
		s.accepted = img
	}
	return ev, nil
}

// Accepted returns the accepted frame, if any.
func (s *Session) Accepted() (image.Image, bool) {
	return s.accepted, s.accepted != nil
}

// Attempts is the number of frames evaluated so far.
func (s *Session) Attempts() int {
	return s.attempts
}

// Result is the outcome of a successful Capture.
type Result struct {
	Frame      image.Image
	Evaluation Evaluation
	Attempts   int
}

// Capture pulls frames from src until one is accepted, the source ends, or
// ctx is cancelled. Detector errors on a single frame are reported through
// onFrame (if set) and the loop moves on to the next frame.
func Capture(ctx context.Context, g *Gate, src FrameSource, onFrame func(Evaluation, error)) (Result, error) {
	s := NewSession(g)
	for {
		if err := ctx.Err(); err != nil {
			return Result{Attempts: s.Attempts()}, err
		}

		img, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return Result{Attempts: s.Attempts()}, ErrSourceExhausted
		}
		if err != nil {
			return Result{Attempts: s.Attempts()}, err
		}

		ev, err := s.Offer(ctx, img)
		if onFrame != nil {
			onFrame(ev, err)
		}
		if err != nil {
			if ctx.Err() != nil {
				return Result{Attempts: s.Attempts()}, ctx.Err()
			}
			// a missing model fails every frame the same way
			if errors.Is(err, ErrCascadeLoad) {
				return Result{Attempts: s.Attempts()}, err
			}
			continue
		}
		if ev.State == Accepted {
			return Result{Frame: img, Evaluation: ev, Attempts: s.Attempts()}, nil
		}
	}
}
