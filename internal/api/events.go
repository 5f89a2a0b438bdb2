package api

import (
	"github.com/google/uuid"

	"github.com/messageai/tacsync/internal/apiv1"
	"github.com/messageai/tacsync/internal/bus"
)

const watchBuffer = 256

// forward streams bus events as envelopes until the client goes away.
func forward(stream apiv1.EventStream, profile string, subs ...<-chan bus.Event) error {
	merged := make(chan bus.Event, watchBuffer)
	done := stream.Context().Done()
	for _, ch := range subs {
		go func() {
			for {
				select {
				case evt := <-ch:
					select {
					case merged <- evt:
					case <-done:
						return
					}
				case <-done:
					return
				}
			}
		}()
	}

	for {
		select {
		case evt := <-merged:
			if err := stream.Send(envelope(profile, evt)); err != nil {
				return err
			}
		case <-done:
			return nil
		}
	}
}

func envelope(profile string, evt bus.Event) *apiv1.EventEnvelope {
	return &apiv1.EventEnvelope{
		EventID:          uuid.New().String(),
		Profile:          profile,
		OccurredAtUnixMs: evt.Timestamp.UnixMilli(),
		Kind:             evt.Kind,
		ChatID:           evt.Key,
	}
}
