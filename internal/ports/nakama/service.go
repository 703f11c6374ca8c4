package nakama

import (
	"context"

	"github.com/google/uuid"

	"dominoclient/internal/domain"
	"dominoclient/internal/ports"
)

// Service exposes the match handler as a ports.GameService. Each call is
// one match-data message plus its correlated ack; the ack decides between
// a rejection (final) and a transport failure (retryable).
type Service struct {
	client *Client
	newID  func() string
}

var _ ports.GameService = (*Service)(nil)

// NewService wraps an established client connection.
func NewService(client *Client) *Service {
	return &Service{
		client: client,
		newID:  func() string { return uuid.NewString() },
	}
}

func (s *Service) SubmitMove(ctx context.Context, matchID string, piece domain.Piece, side domain.Side) (*domain.Snapshot, error) {
	return s.submit(ctx, matchID, OpPlayPiece, movePayload{OpID: s.newID(), Piece: piece, Side: side})
}

func (s *Service) SubmitPass(ctx context.Context, matchID string) (*domain.Snapshot, error) {
	return s.submit(ctx, matchID, OpPassTurn, movePayload{OpID: s.newID()})
}

func (s *Service) SubmitAutoPlay(ctx context.Context, matchID string) (*domain.Snapshot, error) {
	return s.submit(ctx, matchID, OpAutoPlay, movePayload{OpID: s.newID()})
}

func (s *Service) submit(ctx context.Context, matchID string, opCode int64, payload movePayload) (*domain.Snapshot, error) {
	ack, err := s.client.SendAction(ctx, matchID, opCode, payload)
	if err != nil {
		return nil, err
	}
	if ack.Status == "rejected" {
		return nil, &ports.RejectionError{Code: ack.Code, Message: ack.Message}
	}
	if ack.Snapshot == nil {
		return nil, nil
	}
	return toDomainSnapshot(*ack.Snapshot)
}
