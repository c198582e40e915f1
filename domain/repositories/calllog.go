package repositories

import (
	"context"

	"github.com/zeipo-ai/voicegate/domain/entities"
)

// CallLogRepository persists call summaries after a session finalizes.
type CallLogRepository interface {
	Save(ctx context.Context, record *entities.CallRecord) error
	ListBySession(ctx context.Context, callSessionID string) ([]*entities.CallRecord, error)
}
