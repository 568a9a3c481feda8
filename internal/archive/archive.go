// Package archive keeps a local ledger of completed sessions in sqlite, so
// weeks of bench runs stay queryable after the export files scatter.
package archive

import (
	"context"

	"codeberg.org/voltaic/psuctl/internal/errors"
	"codeberg.org/voltaic/psuctl/internal/logger"
)

type service struct {
	repo Repository
	cfg  Config
}

// No-op implementation
type noopService struct{}

func NewService(cfg Config) (Service, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	// If the archive is disabled, return a no-op service
	if !cfg.Enabled {
		logger.Debug().Msg("Session archive disabled, using no-op service")

		return &noopService{}, nil
	}

	repo, err := NewRepository(cfg)
	if err != nil {
		logger.Debug().Err(err).Msg("Failed to create archive repository")

		return nil, err
	}

	logger.Debug().
		Str("db_path", cfg.DBPath).
		Int("schema_version", SchemaVersion).
		Msg("Session archive initialized")

	return &service{
		repo: repo,
		cfg:  cfg,
	}, nil
}

func (s *service) Record(ctx context.Context, sess Session) error {
	errFactory := errors.New()

	if sess.ID == "" {
		return errFactory.New(ErrInvalidSession)
	}

	select {
	case <-ctx.Done():
		return errFactory.Wrap(ErrOperationAborted, ctx.Err())
	default:
		if err := s.repo.Store(ctx, sess); err != nil {
			return errFactory.Wrap(ErrStorageAccess, err)
		}
	}

	return nil
}

func (s *service) Recent(ctx context.Context, limit int) ([]Entry, error) {
	return s.repo.Recent(ctx, limit)
}

func (s *service) Close() error {
	errFactory := errors.New()

	if err := s.repo.Close(); err != nil {
		return errFactory.Wrap(ErrStorageClose, err)
	}

	return nil
}

// No-op implementation
func (*noopService) Record(_ context.Context, _ Session) error {
	return nil
}

func (*noopService) Recent(_ context.Context, _ int) ([]Entry, error) {
	return nil, nil
}

func (*noopService) Close() error {
	return nil
}
