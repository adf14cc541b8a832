package sqlite

import (
	"time"

	"github.com/ahrav/questlog/internal/domain"
)

// questModel is the GORM row for a quest.
type questModel struct {
	ID        string `gorm:"primaryKey"`
	UserID    string `gorm:"index;not null"`
	Title     string `gorm:"not null"`
	IsMain    bool   `gorm:"not null;default:false"`
	Quarter   string `gorm:"not null"`
	Completed bool   `gorm:"not null;default:false"`
	Progress  int    `gorm:"not null;default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (questModel) TableName() string { return "quests" }

// taskModel is the GORM row for a task.
type taskModel struct {
	ID                string `gorm:"primaryKey"`
	UserID            string `gorm:"index;not null"`
	QuestID           string `gorm:"index;not null"`
	Title             string `gorm:"not null"`
	Description       string
	Status            string `gorm:"not null;default:pending"`
	DueDate           *time.Time
	CompletedAt       *time.Time
	Verified          bool `gorm:"not null;default:false"`
	ProofURL          string
	PointsAwarded     int `gorm:"not null;default:0"`
	VerificationNotes string
	RetryCount        int `gorm:"not null;default:0"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (taskModel) TableName() string { return "tasks" }

// allowanceModel is the per-owner, per-quarter retry bucket.
type allowanceModel struct {
	UserID    string `gorm:"primaryKey"`
	Quarter   string `gorm:"primaryKey"`
	Remaining int    `gorm:"not null"`
	UpdatedAt time.Time
}

func (allowanceModel) TableName() string { return "retry_allowances" }

func questFromDomain(q domain.Quest) questModel {
	return questModel{
		ID:        q.ID,
		UserID:    q.OwnerID,
		Title:     q.Title,
		IsMain:    q.IsMain,
		Quarter:   q.Quarter,
		Completed: q.Completed,
		Progress:  q.Progress,
		CreatedAt: q.CreatedAt,
		UpdatedAt: q.UpdatedAt,
	}
}

func (m questModel) toDomain() domain.Quest {
	return domain.Quest{
		ID:        m.ID,
		OwnerID:   m.UserID,
		Title:     m.Title,
		IsMain:    m.IsMain,
		Quarter:   m.Quarter,
		Completed: m.Completed,
		Progress:  m.Progress,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func taskFromDomain(t domain.Task) taskModel {
	return taskModel{
		ID:                t.ID,
		UserID:            t.OwnerID,
		QuestID:           t.QuestID,
		Title:             t.Title,
		Description:       t.Description,
		Status:            string(t.Status),
		DueDate:           t.DueDate,
		CompletedAt:       t.CompletedAt,
		Verified:          t.Verified,
		ProofURL:          t.ProofURL,
		PointsAwarded:     t.PointsAwarded,
		VerificationNotes: t.VerificationNotes,
		RetryCount:        t.RetryCount,
		CreatedAt:         t.CreatedAt,
		UpdatedAt:         t.UpdatedAt,
	}
}

func (m taskModel) toDomain() domain.Task {
	return domain.Task{
		ID:                m.ID,
		OwnerID:           m.UserID,
		QuestID:           m.QuestID,
		Title:             m.Title,
		Description:       m.Description,
		Status:            domain.TaskStatus(m.Status),
		DueDate:           m.DueDate,
		CompletedAt:       m.CompletedAt,
		Verified:          m.Verified,
		ProofURL:          m.ProofURL,
		PointsAwarded:     m.PointsAwarded,
		VerificationNotes: m.VerificationNotes,
		RetryCount:        m.RetryCount,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}
