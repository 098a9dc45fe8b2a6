package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/backstage/services/provenance/config"
	"example.com/backstage/services/provenance/integrity"
)

const receiveBatchSize = 10

type AzureClient struct {
	client *azservicebus.Client
}

func NewAzureClient(cfg config.AzureConfig) (*AzureClient, error) {
	client, err := azservicebus.NewClientFromConnectionString(cfg.QueueConnStr, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create service bus client")
	}

	return &AzureClient{client: client}, nil
}

// StartConsumers accepts sessions from a queue until ctx is cancelled. Each
// session is drained on its own goroutine so one sender cannot block another.
func (a *AzureClient) StartConsumers(ctx context.Context, queueName string, processor MessageProcessor) error {
	log.Info().Msgf("Starting consumers for queue %s", queueName)

	// Loop continuously to handle reconnections
	for {
		sessionReceiver, err := a.client.AcceptNextSessionForQueue(ctx, queueName, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var sbErr *azservicebus.Error
			if errors.As(err, &sbErr) && sbErr.Code == azservicebus.CodeTimeout {
				log.Debug().Msg("No session available, waiting...")
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(2 * time.Second):
				}
				continue
			}
			return errors.Wrapf(err, "failed to accept session on %s", queueName)
		}

		log.Info().Msgf("Session '%s' received", sessionReceiver.SessionID())

		go a.handleSession(ctx, sessionReceiver, processor)
	}
}

func (a *AzureClient) handleSession(ctx context.Context, receiver *azservicebus.SessionReceiver, processor MessageProcessor) {
	defer func() {
		log.Info().Msgf("Closing session '%s'", receiver.SessionID())
		if err := receiver.Close(context.Background()); err != nil {
			log.Error().Err(err).Msgf("Error closing session '%s'", receiver.SessionID())
		}
	}()

	for {
		messages, err := receiver.ReceiveMessages(ctx, receiveBatchSize, nil)
		if err != nil {
			if ctx.Err() == nil {
				log.Error().Err(err).Msgf("Error receiving messages from session '%s'", receiver.SessionID())
			}
			return
		}

		if len(messages) == 0 {
			// No more messages in this session
			return
		}

		log.Debug().Msgf("Received %d messages from session '%s'", len(messages), receiver.SessionID())

		for _, message := range messages {
			if err := processor.ProcessMessage(ctx, message); err != nil {
				log.Error().Err(err).Msgf("Error processing message '%s'", message.MessageID)
				// Return the message to the queue
				if err := receiver.AbandonMessage(context.Background(), message, nil); err != nil {
					log.Error().Err(err).Msg("Failed to abandon message")
				}
				continue
			}

			if err := receiver.CompleteMessage(context.Background(), message, nil); err != nil {
				log.Error().Err(err).Msg("Failed to complete message")
			}
		}
	}
}

// Sender returns an anchor publisher for the given queue
func (a *AzureClient) Sender(queueName string) (*AnchorPublisher, error) {
	sender, err := a.client.NewSender(queueName, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create sender for %s", queueName)
	}
	return &AnchorPublisher{sender: sender, queue: queueName}, nil
}

func (a *AzureClient) Close(ctx context.Context) error {
	return a.client.Close(ctx)
}

// AnchorPublisher exports signed anchor digests to a Service Bus queue
type AnchorPublisher struct {
	sender *azservicebus.Sender
	queue  string
}

var _ integrity.Publisher = (*AnchorPublisher)(nil)

// PublishAnchor sends one digest. The message id is derived from the anchor
// id so duplicate detection on the queue drops republished anchors.
func (p *AnchorPublisher) PublishAnchor(ctx context.Context, digest integrity.AnchorDigest) error {
	body, err := json.Marshal(digest)
	if err != nil {
		return errors.Wrap(err, "failed to encode anchor digest")
	}

	messageID := fmt.Sprintf("anchor-%d", digest.AnchorID)
	contentType := "application/json"
	subject := "ledger.anchor"
	if err := p.sender.SendMessage(ctx, &azservicebus.Message{
		Body:        body,
		MessageID:   &messageID,
		ContentType: &contentType,
		Subject:     &subject,
	}, nil); err != nil {
		return errors.Wrapf(err, "failed to send anchor %d to %s", digest.AnchorID, p.queue)
	}

	log.Info().
		Uint64("anchorID", digest.AnchorID).
		Str("queue", p.queue).
		Msg("Anchor published")
	return nil
}

func (p *AnchorPublisher) Close(ctx context.Context) error {
	return p.sender.Close(ctx)
}
