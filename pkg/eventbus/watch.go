package eventbus

import (
	"context"
	"sync"

	"github.com/dukex/flowrun/pkg/events"
)

// ProgressFunc receives one decoded progress event.
type ProgressFunc func(eventType events.EventType, event any)

// Watch follows every progress topic on sub and hands the events of executionID
// to fn, or the events of every execution when executionID is empty. Calls to fn
// are serialized. The returned channel is closed after the terminal event of
// executionID was handled; it never closes when executionID is empty.
func Watch(ctx context.Context, sub Subscriber, executionID string, fn ProgressFunc) (<-chan struct{}, error) {
	var (
		mu   sync.Mutex
		once sync.Once
	)

	done := make(chan struct{})

	for _, topic := range events.Topics() {
		eventType := events.EventType(topic)

		err := sub.Handle(eventType, func(_ context.Context, event any) error {
			if executionID != "" {
				k, ok := event.(keyed)
				if !ok || k.Key() != executionID {
					return nil
				}
			}

			mu.Lock()
			fn(eventType, event)
			mu.Unlock()

			if executionID != "" && events.IsTerminal(eventType) {
				once.Do(func() { close(done) })
			}

			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	if err := sub.Subscribe(ctx); err != nil {
		return nil, err
	}

	return done, nil
}
