// Package persister lands classifications
// durably, idempotently, keyed by idemp_key / message_id.
package persister

import (
	"context"
	"strconv"
	"time"

	"github.com/kodelabs/mailrouter/core/domain"
	"github.com/kodelabs/mailrouter/core/port/out"
	"github.com/kodelabs/mailrouter/pkg/apperr"
	"github.com/kodelabs/mailrouter/pkg/logger"
)

type Service struct {
	messages        out.MessageRepository
	classifications out.ClassificationRepository
	log             *logger.Logger
}

func NewService(messages out.MessageRepository, classifications out.ClassificationRepository) *Service {
	return &Service{messages: messages, classifications: classifications, log: logger.Default().WithField("component", "persister")}
}

// HandleClassified implements port/in.PersisterService for one
// emails.classified.v1 message. It does not ack (returns a transient
// apperr) until both upserts succeed — the two
// upserts are not wrapped in a distributed transaction; redelivery
// retries the pair and the message row survives across retries.
func (s *Service) HandleClassified(ctx context.Context, fields map[string]string) error {
	traceID := fields["trace_id"]

	receivedTS, _ := strconv.ParseInt(fields["received_ts"], 10, 64)
	messageRow := domain.MessageRow{
		IdempKey:   fields["idemp_key"],
		MailboxID:  fields["mailbox_id"],
		ExternalID: fields["external_id"],
		Subject:    fields["subject"],
		BodyHash:   fields["body_hash"],
		ReceivedAt: time.Unix(receivedTS, 0).UTC(),
	}
	messageID, err := s.messages.Upsert(ctx, messageRow)
	if err != nil {
		return apperr.Transient("messages.upsert", err)
	}

	confidence, _ := strconv.ParseFloat(fields["confidence"], 64)
	classificationRow := domain.ClassificationRow{
		MessageID:     messageID,
		Class:         fields["class"],
		Confidence:    confidence,
		WatcherID:     fields["watcher_id"],
		ExtractedData: fields["extracted_data"],
	}
	if err := s.classifications.Upsert(ctx, classificationRow); err != nil {
		return apperr.Transient("classifications.upsert", err)
	}

	s.log.WithField("trace_id", traceID).WithField("idemp_key", fields["idemp_key"]).Info("persisted message %d with classification", messageID)
	return nil
}
