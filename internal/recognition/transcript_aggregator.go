package recognition

import (
	"strings"
	"sync"

	"voicerelay/internal/ports"
)

// transcriptAggregator folds provider events into the single best transcript
// reported for a session.
type transcriptAggregator struct {
	mu         sync.Mutex
	finals     []string
	lastSpoken string
}

func newTranscriptAggregator() *transcriptAggregator {
	return &transcriptAggregator{}
}

func (a *transcriptAggregator) Add(event ports.TranscriptEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	text := strings.TrimSpace(event.Text)
	if text == "" {
		return
	}
	a.lastSpoken = text
	if event.Kind == ports.TranscriptKindFinal {
		a.finals = append(a.finals, text)
	}
}

// Best joins the final segments, falling back to the last partial when the
// provider never finalized anything.
func (a *transcriptAggregator) Best() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	joined := strings.TrimSpace(strings.Join(a.finals, " "))
	switch {
	case joined == "":
		return a.lastSpoken
	case a.lastSpoken == "", strings.HasSuffix(joined, a.lastSpoken):
		return joined
	case len(a.lastSpoken) > len(joined):
		return strings.TrimSpace(joined + " " + a.lastSpoken)
	default:
		return joined
	}
}

func collectTranscripts(session ports.StreamingSession, aggregator *transcriptAggregator, done chan struct{}) {
	defer close(done)

	for event := range session.Events() {
		aggregator.Add(event)
	}
}
