package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/dreamtales/dreamtales-api/internal/models"
)

func (db *DB) CreateStory(ctx context.Context, story *models.Story) error {
	query := `
        INSERT INTO stories (id, user_id, child_name, child_age, theme, language, title, content, locale)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING created_at
    `

	return db.Pool.QueryRow(ctx, query,
		story.ID,
		story.UserID,
		story.ChildName,
		story.ChildAge,
		story.Theme,
		story.Language,
		story.Title,
		story.Content,
		story.Locale,
	).Scan(&story.CreatedAt)
}

func (db *DB) GetStory(ctx context.Context, id string) (*models.Story, error) {
	query := `
        SELECT id, user_id, child_name, child_age, theme, language, title, content,
               COALESCE(image_url, ''), COALESCE(audio_url, ''), locale, created_at
        FROM stories
        WHERE id = $1
    `

	var story models.Story
	err := db.Pool.QueryRow(ctx, query, id).Scan(
		&story.ID,
		&story.UserID,
		&story.ChildName,
		&story.ChildAge,
		&story.Theme,
		&story.Language,
		&story.Title,
		&story.Content,
		&story.ImageURL,
		&story.AudioURL,
		&story.Locale,
		&story.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &story, nil
}

func (db *DB) ListStoriesByUser(ctx context.Context, userID string, limit int) ([]*models.Story, error) {
	query := `
        SELECT id, user_id, child_name, child_age, theme, language, title, content,
               COALESCE(image_url, ''), COALESCE(audio_url, ''), locale, created_at
        FROM stories
        WHERE user_id = $1
        ORDER BY created_at DESC
        LIMIT $2
    `

	rows, err := db.Pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stories := []*models.Story{}
	for rows.Next() {
		var story models.Story
		err := rows.Scan(
			&story.ID,
			&story.UserID,
			&story.ChildName,
			&story.ChildAge,
			&story.Theme,
			&story.Language,
			&story.Title,
			&story.Content,
			&story.ImageURL,
			&story.AudioURL,
			&story.Locale,
			&story.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		stories = append(stories, &story)
	}

	return stories, rows.Err()
}

func (db *DB) DeleteStory(ctx context.Context, id, userID string) error {
	query := `DELETE FROM stories WHERE id = $1 AND user_id = $2`

	tag, err := db.Pool.Exec(ctx, query, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
