package repository

import (
	"github.com/sirupsen/logrus"

	"github.com/FeanorKingofNoldor/moneygoesbrrbrrbrr/internal/database"
)

// NewRepositories wires the PostgreSQL implementations over one pool.
func NewRepositories(db *database.DB, logger *logrus.Logger) *Repositories {
	return &Repositories{
		Patterns: NewPostgresPatternRepository(db, logger),
		Trades:   NewPostgresPatternTradeRepository(db),
		Events:   NewPostgresLearningEventRepository(db),
	}
}
