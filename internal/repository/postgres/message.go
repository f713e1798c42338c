package postgres

import (
	"context"

	"github.com/google/uuid"

	"github.com/jwalitptl/telemed-api/internal/model"
	"github.com/jwalitptl/telemed-api/internal/repository"
)

type messageRepository struct {
	BaseRepository
}

func NewMessageRepository(base BaseRepository) repository.MessageRepository {
	return &messageRepository{base}
}

func (r *messageRepository) Create(ctx context.Context, msg *model.Message) error {
	query := `
		INSERT INTO consultation_messages (id, consultation_id, sender_id, body, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}

	_, err := r.exec(ctx, query, msg.ID, msg.ConsultationID, msg.SenderID, msg.Body, msg.CreatedAt)
	return mapError(err, "message")
}

func (r *messageRepository) ListByConsultation(ctx context.Context, consultationID uuid.UUID, page model.Pagination) ([]*model.Message, error) {
	page = page.Normalize()
	query := `
		SELECT id, consultation_id, sender_id, body, created_at
		FROM consultation_messages
		WHERE consultation_id = $1
		ORDER BY created_at ASC
		LIMIT $2 OFFSET $3
	`
	messages := []*model.Message{}
	if err := r.selectAll(ctx, &messages, query, consultationID, page.Limit, page.Offset); err != nil {
		return nil, mapError(err, "message")
	}
	return messages, nil
}
