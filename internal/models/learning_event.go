package models

import (
	"time"

	"github.com/google/uuid"
)

// Lesson types recorded in the append-only learning log.
const (
	LessonScheduled        = "scheduled"
	LessonCriticalAlert    = "critical_alert"
	LessonImmediateOutcome = "immediate_outcome"
	LessonRegimeTransition = "regime_transition"
	LessonPositionClosed   = "position_closed"
)

// LearningEvent is one memory-injection action. Append-only, never mutated.
type LearningEvent struct {
	ID             uuid.UUID `db:"id" json:"id"`
	LearningDate   time.Time `db:"learning_date" json:"learning_date"`
	LessonType     string    `db:"lesson_type" json:"lesson_type"`
	PatternIDs     []string  `db:"pattern_ids" json:"pattern_ids"`
	Situation      string    `db:"situation" json:"situation"`
	Recommendation string    `db:"recommendation" json:"recommendation"`
	Channels       []string  `db:"channels" json:"channels"`
}

// NewLearningEvent stamps a fresh event with id and date.
func NewLearningEvent(lessonType string, patternIDs []string, situation, recommendation string, channels []string) *LearningEvent {
	return &LearningEvent{
		ID:             uuid.New(),
		LearningDate:   time.Now().UTC(),
		LessonType:     lessonType,
		PatternIDs:     patternIDs,
		Situation:      situation,
		Recommendation: recommendation,
		Channels:       channels,
	}
}
