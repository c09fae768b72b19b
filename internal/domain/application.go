package domain

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const MaxApplicationMessageLength = 300

type ApplicationStatus string

const (
	ApplicationStatusPending  ApplicationStatus = "pending"
	ApplicationStatusAccepted ApplicationStatus = "accepted"
	ApplicationStatusRejected ApplicationStatus = "rejected"
)

func (s ApplicationStatus) IsTerminal() bool {
	return s == ApplicationStatusAccepted || s == ApplicationStatusRejected
}

// Decision is the post author's verdict on a pending application.
type Decision string

const (
	DecisionAccept Decision = "accept"
	DecisionReject Decision = "reject"
)

func (d Decision) IsValid() bool {
	return d == DecisionAccept || d == DecisionReject
}

// Status is the application status a decision moves to.
func (d Decision) Status() ApplicationStatus {
	if d == DecisionAccept {
		return ApplicationStatusAccepted
	}
	return ApplicationStatusRejected
}

// Application is a request by a user to join a post's party. At most one
// pending application may exist per (post, applicant); a partial unique index
// created by the migration enforces it.
type Application struct {
	ID          uuid.UUID         `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	PostID      uuid.UUID         `json:"postId" gorm:"type:uuid;not null;index"`
	ApplicantID uuid.UUID         `json:"applicantId" gorm:"type:uuid;not null;index"`
	Lane        Lane              `json:"lane" gorm:"type:varchar(20);not null"`
	Message     string            `json:"message"`
	Status      ApplicationStatus `json:"status" gorm:"type:varchar(20);not null;default:'pending';index"`
	CreatedAt   time.Time         `json:"createdAt"`
	ResolvedAt  *time.Time        `json:"resolvedAt,omitempty"`
}

// ValidateApplication checks the applicant-supplied fields.
func ValidateApplication(a *Application) error {
	a.Message = strings.TrimSpace(a.Message)
	if !a.Lane.IsValid() {
		return NewValidationError("lane", "unknown lane")
	}
	if utf8.RuneCountInString(a.Message) > MaxApplicationMessageLength {
		return NewValidationError("message", "is too long")
	}
	return nil
}

// ApplicationView is an application enriched for display.
type ApplicationView struct {
	*Application
	Post      *Post        `json:"post"`
	Applicant *UserSummary `json:"applicant,omitempty"`
}

// ApplicationOverview splits a user's applications by direction.
type ApplicationOverview struct {
	Received []*ApplicationView `json:"received"`
	Sent     []*ApplicationView `json:"sent"`
}
