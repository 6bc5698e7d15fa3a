package repositories

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"studygroup-chat/internal/models"
)

// NewChatMessage is a message about to be stored. Empty file fields are stored as NULL.
type NewChatMessage struct {
	GroupID  int64
	SenderID int64
	Content  string
	Type     models.MessageType
	FileURL  string
	FileName string
	FileType string
	FileSize int64
}

// ChatMessageRepository defines interactions for group chat messages.
type ChatMessageRepository interface {
	CreateMessage(ctx context.Context, msg NewChatMessage) (models.ChatMessage, error)
	ListGroupMessages(ctx context.Context, groupID int64, page, size int) ([]models.ChatMessage, error)
}

// ChatMessageRepo is a sqlx-backed implementation.
type ChatMessageRepo struct {
	db *sqlx.DB
}

// NewChatMessageRepo constructs a ChatMessageRepo.
func NewChatMessageRepo(db *sqlx.DB) *ChatMessageRepo {
	return &ChatMessageRepo{db: db}
}

type messageRow struct {
	ID           int64          `db:"id"`
	GroupID      int64          `db:"group_id"`
	GroupName    string         `db:"group_name"`
	SenderID     int64          `db:"sender_id"`
	SenderName   string         `db:"sender_name"`
	SenderEmail  string         `db:"sender_email"`
	SenderAvatar sql.NullString `db:"sender_avatar"`
	Content      string         `db:"content"`
	Type         string         `db:"type"`
	FileURL      sql.NullString `db:"file_url"`
	FileName     sql.NullString `db:"file_name"`
	FileType     sql.NullString `db:"file_type"`
	FileSize     sql.NullInt64  `db:"file_size"`
	CreatedAt    sql.NullTime   `db:"created_at"`
}

func (r messageRow) toModel() models.ChatMessage {
	return models.ChatMessage{
		ID:    r.ID,
		Group: models.GroupRef{ID: r.GroupID, Name: r.GroupName},
		Sender: models.Sender{
			ID:        r.SenderID,
			Name:      r.SenderName,
			Email:     r.SenderEmail,
			AvatarURL: r.SenderAvatar.String,
		},
		Content:   r.Content,
		Type:      models.MessageType(r.Type),
		FileURL:   r.FileURL.String,
		FileName:  r.FileName.String,
		FileType:  r.FileType.String,
		FileSize:  r.FileSize.Int64,
		Timestamp: r.CreatedAt.Time.UTC(),
	}
}

const messageColumns = `m.id, m.group_id, g.name AS group_name, m.sender_id, u.name AS sender_name,
    u.email AS sender_email, u.avatar_url AS sender_avatar, m.content, m.type,
    m.file_url, m.file_name, m.file_type, m.file_size, m.created_at`

// CreateMessage persists a message and returns it with group and sender details.
func (r *ChatMessageRepo) CreateMessage(ctx context.Context, msg NewChatMessage) (models.ChatMessage, error) {
	var row messageRow
	err := r.db.GetContext(ctx, &row, `WITH m AS (
            INSERT INTO chat_messages (group_id, sender_id, content, type, file_url, file_name, file_type, file_size)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
            RETURNING *
        )
        SELECT `+messageColumns+`
        FROM m
        INNER JOIN groups g ON g.id = m.group_id
        INNER JOIN users u ON u.id = m.sender_id`,
		msg.GroupID, msg.SenderID, msg.Content, string(msg.Type),
		nullString(msg.FileURL), nullString(msg.FileName), nullString(msg.FileType), nullInt(msg.FileSize))
	if err != nil {
		return models.ChatMessage{}, err
	}
	return row.toModel(), nil
}

// ListGroupMessages returns one page of messages, newest first.
func (r *ChatMessageRepo) ListGroupMessages(ctx context.Context, groupID int64, page, size int) ([]models.ChatMessage, error) {
	var rows []messageRow
	err := r.db.SelectContext(ctx, &rows, `SELECT `+messageColumns+`
        FROM chat_messages m
        INNER JOIN groups g ON g.id = m.group_id
        INNER JOIN users u ON u.id = m.sender_id
        WHERE m.group_id = $1
        ORDER BY m.created_at DESC, m.id DESC
        LIMIT $2 OFFSET $3`, groupID, size, page*size)
	if err != nil {
		return nil, err
	}
	msgs := make([]models.ChatMessage, 0, len(rows))
	for _, row := range rows {
		msgs = append(msgs, row.toModel())
	}
	return msgs, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(n int64) sql.NullInt64 {
	return sql.NullInt64{Int64: n, Valid: n != 0}
}
