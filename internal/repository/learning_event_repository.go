package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/FeanorKingofNoldor/moneygoesbrrbrrbrr/internal/database"
	"github.com/FeanorKingofNoldor/moneygoesbrrbrrbrr/internal/models"
)

// PostgresLearningEventRepository implements LearningEventRepository for PostgreSQL
type PostgresLearningEventRepository struct {
	db *database.DB
}

// NewPostgresLearningEventRepository creates a new learning-event repository
func NewPostgresLearningEventRepository(db *database.DB) LearningEventRepository {
	return &PostgresLearningEventRepository{db: db}
}

// Append inserts a learning event. The log is append-only; there is no
// update or delete path.
func (r *PostgresLearningEventRepository) Append(ctx context.Context, event *models.LearningEvent) error {
	patternIDs, err := json.Marshal(event.PatternIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal pattern ids: %w", err)
	}
	channels, err := json.Marshal(event.Channels)
	if err != nil {
		return fmt.Errorf("failed to marshal channels: %w", err)
	}

	query := `
		INSERT INTO pattern_learning_log (id, learning_date, lesson_type, pattern_ids, situation, recommendation, channels)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = r.db.Querier(ctx).Exec(ctx, query,
		event.ID, event.LearningDate, event.LessonType,
		patternIDs, event.Situation, event.Recommendation, channels,
	)
	if err != nil {
		return fmt.Errorf("failed to append learning event: %w", err)
	}

	return nil
}

// RecentLessons returns events from the last N days, newest first
func (r *PostgresLearningEventRepository) RecentLessons(ctx context.Context, days int) ([]*models.LearningEvent, error) {
	query := `
		SELECT id, learning_date, lesson_type, pattern_ids, situation, recommendation, channels
		FROM pattern_learning_log
		WHERE learning_date > now() - make_interval(days => $1)
		ORDER BY learning_date DESC
	`

	rows, err := r.db.Querier(ctx).Query(ctx, query, days)
	if err != nil {
		return nil, fmt.Errorf("failed to query learning events: %w", err)
	}
	defer rows.Close()

	var events []*models.LearningEvent
	for rows.Next() {
		event := &models.LearningEvent{}
		var patternIDs, channels []byte
		err := rows.Scan(
			&event.ID, &event.LearningDate, &event.LessonType,
			&patternIDs, &event.Situation, &event.Recommendation, &channels,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan learning event: %w", err)
		}
		if err := json.Unmarshal(patternIDs, &event.PatternIDs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal pattern ids: %w", err)
		}
		if err := json.Unmarshal(channels, &event.Channels); err != nil {
			return nil, fmt.Errorf("failed to unmarshal channels: %w", err)
		}
		events = append(events, event)
	}

	return events, rows.Err()
}
