package memory

import (
	"context"
	"sync"

	"github.com/zeipo-ai/voicegate/domain/entities"
	"github.com/zeipo-ai/voicegate/domain/repositories"
)

// CallLog is an in-memory call log for development and tests.
type CallLog struct {
	mu      sync.Mutex
	records []*entities.CallRecord
}

var _ repositories.CallLogRepository = (*CallLog)(nil)

func NewCallLog() *CallLog {
	return &CallLog{}
}

func (c *CallLog) Save(_ context.Context, record *entities.CallRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	clone := *record
	c.records = append(c.records, &clone)
	return nil
}

func (c *CallLog) ListBySession(_ context.Context, callSessionID string) ([]*entities.CallRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := []*entities.CallRecord{}
	for _, record := range c.records {
		if record.CallSessionID == callSessionID {
			clone := *record
			out = append(out, &clone)
		}
	}
	return out, nil
}
