package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"moodboardAPI/internal/types/moodboard"
)

var ErrMoodboardNotFound = errors.New("moodboard not found")

type MoodboardService struct {
	db *pgxpool.Pool
}

func NewMoodboardService(db *pgxpool.Pool) *MoodboardService {
	return &MoodboardService{db: db}
}

func (s *MoodboardService) Create(ctx context.Context, userID string, req *moodboard.GenerateRequest, description, imageURL string) (*moodboard.Moodboard, error) {
	board := &moodboard.Moodboard{
		ID:          uuid.New().String(),
		UserID:      userID,
		RoomType:    req.RoomType,
		Style:       req.Style,
		Palette:     req.Palette,
		Description: description,
		ImageURL:    imageURL,
		CreatedAt:   time.Now(),
	}

	query := `
	INSERT INTO moodboards (id, user_id, room_type, style, palette, description, image_url, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.Exec(ctx, query,
		board.ID, board.UserID, board.RoomType, board.Style, board.Palette,
		board.Description, board.ImageURL, board.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to save moodboard: %w", err)
	}

	return board, nil
}

func (s *MoodboardService) ListForUser(ctx context.Context, userID string) ([]*moodboard.Moodboard, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, room_type, style, palette, description, image_url, created_at
		FROM moodboards WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list moodboards: %w", err)
	}
	defer rows.Close()

	boards := []*moodboard.Moodboard{}
	for rows.Next() {
		b := &moodboard.Moodboard{}
		err := rows.Scan(&b.ID, &b.UserID, &b.RoomType, &b.Style, &b.Palette,
			&b.Description, &b.ImageURL, &b.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan moodboard: %w", err)
		}
		boards = append(boards, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read moodboards: %w", err)
	}

	return boards, nil
}

// Delete removes a board only when the caller owns it.
func (s *MoodboardService) Delete(ctx context.Context, userID, boardID string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM moodboards WHERE id = $1 AND user_id = $2`, boardID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete moodboard: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrMoodboardNotFound
	}
	return nil
}

// DeleteAllForUser is the account-deletion cascade for boards.
func (s *MoodboardService) DeleteAllForUser(ctx context.Context, userID string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM moodboards WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete moodboards for user %s: %w", userID, err)
	}
	return nil
}
