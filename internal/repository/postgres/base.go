package postgres

import (
	"github.com/jmoiron/sqlx"
)

// BaseRepository holds the connection shared by the postgres repositories.
type BaseRepository struct {
	db *sqlx.DB
}

func NewBaseRepository(db *sqlx.DB) BaseRepository {
	return BaseRepository{db: db}
}
