package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"gorm.io/gorm"

	"lobsim/internal/schema"
	"lobsim/pkg/conn"
	"lobsim/pkg/exception"
)

// Store persists run results to PostgreSQL.
type Store struct {
	db  *gorm.DB
	reg *schema.Registry
}

// Open connects and migrates the run tables.
func Open(option conn.Option, reg *schema.Registry) (*Store, *conn.Client, error) {
	client, err := conn.New(option)
	if err != nil {
		return nil, nil, err
	}
	s, err := New(client.DB(), reg)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	if err := s.Migrate(); err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return s, client, nil
}

// New wraps an open database. reg may be nil; display columns then use zero scale.
func New(db *gorm.DB, reg *schema.Registry) (*Store, error) {
	if db == nil {
		return nil, exception.ErrStoreNotConnected
	}
	return &Store{db: db, reg: reg}, nil
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// Migrate creates or updates the run tables.
func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(&RunRecord{}, &PositionRecord{}); err != nil {
		return errors.Wrap(err, "migrate run tables")
	}
	return nil
}

// SaveRun writes a run and its positions in one transaction. An empty ID gets a new one.
func (s *Store) SaveRun(ctx context.Context, run Run) (string, error) {
	if run.ID == "" {
		run.ID = NewRunID()
	}
	if _, err := uuid.Parse(run.ID); err != nil {
		return "", errors.Wrapf(exception.ErrInvalidArgument, "run id %q", run.ID)
	}
	rec := newRunRecord(run, s.reg)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&rec).Error
	})
	if err != nil {
		return "", errors.Wrapf(err, "save run %s", run.ID)
	}
	logs.Infof("run %s saved, %d positions, digest %s", run.ID, len(rec.Positions), rec.Digest)
	return run.ID, nil
}

// LoadRun reads a run with its positions.
func (s *Store) LoadRun(ctx context.Context, id string) (RunRecord, error) {
	var rec RunRecord
	err := s.db.WithContext(ctx).Preload("Positions").First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return RunRecord{}, errors.Wrap(exception.ErrRunNotFound, id)
	}
	if err != nil {
		return RunRecord{}, errors.Wrapf(err, "load run %s", id)
	}
	return rec, nil
}

// RunsByDigest lists runs that ended in the same state, oldest first.
func (s *Store) RunsByDigest(ctx context.Context, digest string) ([]RunRecord, error) {
	var recs []RunRecord
	err := s.db.WithContext(ctx).Where("digest = ?", digest).Order("created_at").Find(&recs).Error
	if err != nil {
		return nil, errors.Wrap(err, "find runs by digest")
	}
	return recs, nil
}
