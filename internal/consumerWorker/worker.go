package consumerWorker

import (
	"context"
	"encoding/json"

	"github.com/wb-go/wbf/zlog"

	"regflow/internal/dto"
	"regflow/internal/mailer"
	"regflow/internal/rabbit"
)

// Reader drains notification intents from RabbitMQ and hands them to the
// mailer. Delivery failures are logged and the message is acked anyway: the
// producer side treats notifications as fire-and-forget, so retry loops here
// would only hammer the SMTP relay.
type Reader struct {
	RMQ    *rabbit.Client
	mail   *mailer.Mailer
	done   chan struct{}
	cancel context.CancelFunc
}

func NewReader(rmq *rabbit.Client, mail *mailer.Mailer) *Reader {
	return &Reader{
		RMQ:  rmq,
		mail: mail,
		done: make(chan struct{}),
	}
}

func (r *Reader) Start(ctx context.Context) {
	cctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	zlog.Logger.Info().Msg("notification reader started")

	go func() {
		defer close(r.done)

		handler := func(body []byte) error {
			var intent dto.NotificationIntent
			if err := json.Unmarshal(body, &intent); err != nil {
				zlog.Logger.Error().Err(err).Msgf("failed to unmarshal intent: %s", string(body))
				return err
			}

			zlog.Logger.Info().
				Str("email", intent.Email).
				Str("kind", intent.Kind).
				Msg("received notification intent")

			if err := r.mail.Send(intent); err != nil {
				zlog.Logger.Warn().Err(err).
					Str("email", intent.Email).
					Msg("failed to send notification email")
			}
			return nil
		}

		if err := r.RMQ.Consume(handler); err != nil {
			zlog.Logger.Error().Err(err).Msg("failed to start consuming")
			return
		}

		<-cctx.Done()
		zlog.Logger.Info().Msg("notification reader stopped by context")
	}()
}

func (r *Reader) Stop() {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
}
