package pubsub

import (
	"context"
	"encoding/json"

	pkglog "github.com/weiawesome/wes-io-watchparty/pkg/log"
)

// subscriberBuffer is the per-subscription event buffer shared by the drivers.
const subscriberBuffer = 100

// forward decodes a raw bus payload and hands it to the subscriber without
// blocking. It reports false only when ctx is done.
func forward(ctx context.Context, driver, source string, raw []byte, eventCh chan<- *Event) bool {
	l := pkglog.L()

	var event Event
	if err := json.Unmarshal(raw, &event); err != nil {
		l.Warn().Err(err).Str("driver", driver).Str("source", source).Msg("pubsub: invalid event")
		return true
	}

	select {
	case eventCh <- &event:
	case <-ctx.Done():
		return false
	default:
		l.Warn().
			Str("driver", driver).
			Str("source", source).
			Str("type", event.Type).
			Msg("pubsub: subscriber full, event dropped")
	}
	return true
}
