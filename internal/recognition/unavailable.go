package recognition

import (
	"context"
	"fmt"

	"voicerelay/internal/domain"
)

// Unavailable stands in for a platform without speech recognition.
type Unavailable struct {
	Reason error
}

func (u Unavailable) Available() error {
	if u.Reason == nil {
		return domain.ErrCapabilityUnavailable
	}
	return fmt.Errorf("%w: %v", domain.ErrCapabilityUnavailable, u.Reason)
}

func (u Unavailable) Start(context.Context, string) error { return u.Available() }

func (u Unavailable) Stop() error { return nil }

func (u Unavailable) Events() <-chan domain.RecognitionEvent { return nil }
