package eventbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openride/dispatch/pkg/logger"
	"go.uber.org/zap"
)

// Consume subscribes to a subject and runs one background consumer that
// decodes each payload as T and invokes the handler. Undecodable or invalid
// messages are logged and dropped; handler errors are logged and the consumer
// advances. The consumer exits on context cancellation or stream end.
func Consume[T Event](ctx context.Context, stream SubjectStream, subject string, handler func(context.Context, T) error) error {
	msgs, err := stream.Subscribe(subject)
	if err != nil {
		return fmt.Errorf("consume %s: %w", subject, err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}

				var event T
				if err := json.Unmarshal(msg.Data, &event); err != nil {
					logger.Warn("dropping undecodable event",
						zap.String("subject", subject),
						zap.Error(err),
					)
					continue
				}
				if err := event.Validate(); err != nil {
					logger.Warn("dropping invalid event",
						zap.String("subject", subject),
						zap.Error(err),
					)
					continue
				}

				if err := handler(ctx, event); err != nil {
					logger.Error("event handler failed",
						zap.String("subject", subject),
						zap.Error(err),
					)
				}
			}
		}
	}()

	return nil
}
