// Package query is a thin, read-only pass-through over the persisted
// message and classification repositories for callers that want to
// list routed mail without touching storage directly. No transport is
// wired to it here.
package query

import (
	"context"

	"github.com/kodelabs/mailrouter/core/domain"
	in "github.com/kodelabs/mailrouter/core/port/in"
	"github.com/kodelabs/mailrouter/core/port/out"
)

type Service struct {
	messages        out.MessageRepository
	classifications out.ClassificationRepository
}

func NewService(messages out.MessageRepository, classifications out.ClassificationRepository) *Service {
	return &Service{messages: messages, classifications: classifications}
}

var _ in.QueryService = (*Service)(nil)

func (s *Service) ListMessages(ctx context.Context, mailboxID string, limit int) ([]domain.MessageRow, error) {
	return s.messages.ListByMailbox(ctx, mailboxID, limit)
}

func (s *Service) ListClassifications(ctx context.Context, messageID int64) ([]domain.ClassificationRow, error) {
	return s.classifications.ListByMessageID(ctx, messageID)
}
