package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/qubird/crudo/config"
	"github.com/qubird/crudo/pkg/logger"
	"github.com/qubird/crudo/storage"
)

type Store struct {
	db      *pgxpool.Pool
	log     logger.LoggerI
	items   storage.ItemsRepoI
	actions storage.ActionsRepoI
}

func NewPostgres(ctx context.Context, cfg config.Config, log logger.LoggerI) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.PostgresUser,
		cfg.PostgresPassword,
		cfg.PostgresHost,
		cfg.PostgresPort,
		cfg.PostgresDatabase,
	))
	if err != nil {
		return nil, err
	}

	poolCfg.MaxConns = cfg.PostgresMaxConnections

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	return &Store{
		db:  pool,
		log: log,
	}, nil
}

func (s *Store) CloseDB() {
	s.db.Close()
}

// DB exposes the pool for the startup introspector.
func (s *Store) DB() *pgxpool.Pool {
	return s.db
}

func (s *Store) Items() storage.ItemsRepoI {
	if s.items == nil {
		s.items = NewItemsRepo(s.db, s.log)
	}

	return s.items
}

func (s *Store) Actions() storage.ActionsRepoI {
	if s.actions == nil {
		s.actions = NewActionsRepo(s.db, s.log)
	}

	return s.actions
}
