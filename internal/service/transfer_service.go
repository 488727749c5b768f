package service

import (
	"context"
	"fmt"
	"io"

	"daily-tracker/internal/engine"
	"daily-tracker/internal/model"
	"daily-tracker/internal/transfer"
)

// TransferService moves a user's tasks in and out of export documents.
type TransferService struct {
	manager *engine.Manager
}

func NewTransferService(manager *engine.Manager) *TransferService {
	return &TransferService{manager: manager}
}

// Export writes the user's export document to w.
func (s *TransferService) Export(ctx context.Context, userID string, w io.Writer) (int, error) {
	session, err := s.manager.Open(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("open session: %w", err)
	}
	doc := session.Export()
	if err := transfer.Encode(w, doc); err != nil {
		return 0, fmt.Errorf("encode export: %w", err)
	}
	return len(doc.Tasks), nil
}

// Import reads an export document from r and merges it into the user's tasks.
func (s *TransferService) Import(ctx context.Context, userID string, r io.Reader) ([]model.Task, error) {
	doc, err := transfer.Decode(r)
	if err != nil {
		return nil, err
	}
	session, err := s.manager.Open(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	return session.Import(ctx, doc)
}
