package models

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ConversationTurn is one side of an assistant exchange. Rows are append-only;
// ID is a snowflake so (CreatedAt, ID) orders turns strictly.
type ConversationTurn struct {
	ID              int64  `gorm:"primaryKey;autoIncrement:false"`
	UserID          string `gorm:"index:idx_turn_session;not null"`
	SessionID       string `gorm:"index:idx_turn_session;not null"`
	Role            string `gorm:"not null"`
	Content         string `gorm:"type:text"`
	Cards           string `gorm:"type:text"` // JSON array
	Suggestions     string `gorm:"type:text"` // JSON array
	ContextSnapshot string `gorm:"type:text"` // JSON object, assistant turns only
	CreatedAt       time.Time
}
