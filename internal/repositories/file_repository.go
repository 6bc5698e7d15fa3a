package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

var ErrFileNotFound = errors.New("file not found")

// StoredFile is the metadata of an uploaded chat attachment.
type StoredFile struct {
	ID          string    `db:"id"`
	GroupID     int64     `db:"group_id"`
	UploaderID  int64     `db:"uploader_id"`
	Name        string    `db:"name"`
	ContentType string    `db:"content_type"`
	Size        int64     `db:"size"`
	CreatedAt   time.Time `db:"created_at"`
}

// FileRepository stores attachment metadata; the bytes live in a file store.
type FileRepository interface {
	CreateFile(ctx context.Context, file StoredFile) error
	GetFile(ctx context.Context, fileID string) (StoredFile, error)
}

// FileRepo is a sqlx implementation of FileRepository.
type FileRepo struct {
	db *sqlx.DB
}

// NewFileRepo constructs a FileRepo.
func NewFileRepo(db *sqlx.DB) *FileRepo {
	return &FileRepo{db: db}
}

// CreateFile records an uploaded file.
func (r *FileRepo) CreateFile(ctx context.Context, file StoredFile) error {
	_, err := r.db.NamedExecContext(ctx, `INSERT INTO chat_files (id, group_id, uploader_id, name, content_type, size)
        VALUES (:id, :group_id, :uploader_id, :name, :content_type, :size)`, file)
	return err
}

// GetFile fetches file metadata.
func (r *FileRepo) GetFile(ctx context.Context, fileID string) (StoredFile, error) {
	var file StoredFile
	err := r.db.GetContext(ctx, &file, `SELECT id, group_id, uploader_id, name, content_type, size, created_at FROM chat_files WHERE id=$1`, fileID)
	if errors.Is(err, sql.ErrNoRows) {
		return StoredFile{}, ErrFileNotFound
	}
	return file, err
}
