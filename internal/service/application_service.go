package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dom/rally-league/internal/domain"
	"github.com/dom/rally-league/internal/metrics"
	"github.com/dom/rally-league/internal/notify"
	"github.com/dom/rally-league/internal/repository"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

type ApplicationService struct {
	repos    *repository.Repositories
	notifier *notify.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

func NewApplicationService(repos *repository.Repositories, notifier *notify.Notifier, logger *slog.Logger) *ApplicationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ApplicationService{
		repos:    repos,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

type SubmitApplicationInput struct {
	PostID  uuid.UUID
	Lane    domain.Lane
	Message string
}

// ResolveResult is the outcome of a successful resolve. Party is set only
// when the application was accepted.
type ResolveResult struct {
	Application *domain.Application `json:"application"`
	Party       *domain.Party       `json:"party,omitempty"`
}

// Submit creates a pending application from applicantID to a post.
func (s *ApplicationService) Submit(ctx context.Context, applicantID uuid.UUID, input SubmitApplicationInput) (*domain.Application, error) {
	post, err := s.repos.Post.GetByID(ctx, input.PostID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrPostNotFound
		}
		return nil, err
	}
	if post.OwnerID == applicantID {
		return nil, domain.ErrSelfApplication
	}

	app := &domain.Application{
		ID:          uuid.New(),
		PostID:      post.ID,
		ApplicantID: applicantID,
		Lane:        input.Lane,
		Message:     input.Message,
		Status:      domain.ApplicationStatusPending,
		CreatedAt:   s.now(),
	}
	if err := domain.ValidateApplication(app); err != nil {
		return nil, err
	}

	// Advisory: the partial unique index is what actually enforces this.
	pending, err := s.repos.Application.HasPending(ctx, post.ID, applicantID)
	if err != nil {
		return nil, err
	}
	if pending {
		return nil, domain.ErrDuplicateApplication
	}

	if err := s.repos.Application.Create(ctx, app); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, domain.ErrDuplicateApplication
		}
		return nil, err
	}

	s.logger.Info("application submitted",
		"application_id", app.ID,
		"post_id", post.ID,
		"applicant_id", applicantID,
	)
	return app, nil
}

// Resolve accepts or rejects a pending application on behalf of the post
// author. Accepting flips the status, creates the party and inserts both
// memberships in one transaction; the applicant is notified after commit.
// Of two concurrent resolves of the same application exactly one succeeds.
func (s *ApplicationService) Resolve(ctx context.Context, applicationID, actingUserID uuid.UUID, decision domain.Decision) (result *ResolveResult, err error) {
	ctx, span := tracer.Start(ctx, "ApplicationService.Resolve", trace.WithAttributes(
		attribute.String("application.id", applicationID.String()),
		attribute.String("decision", string(decision)),
	))
	defer func() {
		metrics.RecordResolution(string(decision), resolutionOutcome(err))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if !decision.IsValid() {
		return nil, domain.NewValidationError("decision", "must be accept or reject")
	}

	app, err := s.repos.Application.GetByID(ctx, applicationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrApplicationNotFound
		}
		return nil, err
	}
	post, err := s.repos.Post.GetByID(ctx, app.PostID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrPostNotFound
		}
		return nil, err
	}
	if post.OwnerID != actingUserID {
		return nil, domain.ErrNotPostOwner
	}
	if app.Status.IsTerminal() {
		return nil, domain.ErrApplicationResolved
	}

	now := s.now()
	target := decision.Status()
	switch decision {
	case domain.DecisionReject:
		ok, err := s.repos.Application.Transition(ctx, app.ID, domain.ApplicationStatusPending, target, now)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, domain.ErrApplicationResolved
		}
		app.Status = target
		app.ResolvedAt = &now
		result = &ResolveResult{Application: app}

		s.notifier.Notify(ctx, notify.UserChannel(app.ApplicantID), notify.EventRequestRejected, RequestResolvedEvent{
			ApplicationID: app.ID,
			PostID:        post.ID,
			PostTitle:     post.Title,
		})

	case domain.DecisionAccept:
		var party *domain.Party
		err := s.repos.Tx.WithinTransaction(ctx, func(tx *repository.Repositories) error {
			ok, err := tx.Application.Transition(ctx, app.ID, domain.ApplicationStatusPending, target, now)
			if err != nil {
				return err
			}
			if !ok {
				return domain.ErrApplicationResolved
			}
			party, err = materializeParty(ctx, tx, app, post, now)
			return err
		})
		if err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				// Another writer already created this application's party.
				return nil, domain.ErrApplicationResolved
			}
			return nil, err
		}
		app.Status = target
		app.ResolvedAt = &now
		result = &ResolveResult{Application: app, Party: party}

		span.SetAttributes(attribute.String("party.id", party.ID.String()))
		s.notifier.Notify(ctx, notify.UserChannel(app.ApplicantID), notify.EventRequestAccepted, RequestResolvedEvent{
			ApplicationID: app.ID,
			PostID:        post.ID,
			PostTitle:     post.Title,
			PartyID:       &party.ID,
		})
	}

	s.logger.Info("application resolved",
		"application_id", app.ID,
		"decision", decision,
		"post_id", post.ID,
	)
	return result, nil
}

// RequestResolvedEvent is published to the applicant's user channel.
type RequestResolvedEvent struct {
	ApplicationID uuid.UUID  `json:"applicationId"`
	PostID        uuid.UUID  `json:"postId"`
	PostTitle     string     `json:"postTitle"`
	PartyID       *uuid.UUID `json:"partyId,omitempty"`
}

// ListForUser returns applications on the user's posts and applications the
// user has made, newest first.
func (s *ApplicationService) ListForUser(ctx context.Context, userID uuid.UUID) (*domain.ApplicationOverview, error) {
	received, err := s.repos.Application.ListByPostOwner(ctx, userID)
	if err != nil {
		return nil, err
	}
	sent, err := s.repos.Application.ListByApplicant(ctx, userID)
	if err != nil {
		return nil, err
	}

	posts := make(map[uuid.UUID]*domain.Post)
	applicants := make(map[uuid.UUID]*domain.User)
	var applicantIDs []uuid.UUID
	for _, a := range received {
		if _, ok := applicants[a.ApplicantID]; !ok {
			applicants[a.ApplicantID] = nil
			applicantIDs = append(applicantIDs, a.ApplicantID)
		}
	}
	users, err := s.repos.User.GetByIDs(ctx, applicantIDs)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		applicants[u.ID] = u
	}

	view := func(a *domain.Application, withApplicant bool) (*domain.ApplicationView, error) {
		post, ok := posts[a.PostID]
		if !ok {
			p, err := s.repos.Post.GetByIDUnscoped(ctx, a.PostID)
			if err != nil {
				return nil, fmt.Errorf("load post %s: %w", a.PostID, err)
			}
			posts[a.PostID] = p
			post = p
		}
		v := &domain.ApplicationView{Application: a, Post: post}
		if withApplicant {
			if u := applicants[a.ApplicantID]; u != nil {
				summary := Summarize(u, u.Stats())
				v.Applicant = &summary
			}
		}
		return v, nil
	}

	overview := &domain.ApplicationOverview{
		Received: make([]*domain.ApplicationView, 0, len(received)),
		Sent:     make([]*domain.ApplicationView, 0, len(sent)),
	}
	for _, a := range received {
		v, err := view(a, true)
		if err != nil {
			return nil, err
		}
		overview.Received = append(overview.Received, v)
	}
	for _, a := range sent {
		v, err := view(a, false)
		if err != nil {
			return nil, err
		}
		overview.Sent = append(overview.Sent, v)
	}
	return overview, nil
}

// materializeParty creates the party for an accepted application together
// with its leader and member rows. It must run inside a transaction.
func materializeParty(ctx context.Context, tx *repository.Repositories, app *domain.Application, post *domain.Post, now time.Time) (*domain.Party, error) {
	party := &domain.Party{
		ID:            uuid.New(),
		PostID:        post.ID,
		ApplicationID: app.ID,
		Name:          domain.PartyNameFor(post),
		CreatedAt:     now,
	}
	if err := tx.Party.Create(ctx, party); err != nil {
		return nil, fmt.Errorf("create party: %w", err)
	}

	members := []*domain.PartyMember{
		{ID: uuid.New(), PartyID: party.ID, UserID: post.OwnerID, Role: domain.PartyRoleLeader, Lane: post.Lane, JoinedAt: now},
		{ID: uuid.New(), PartyID: party.ID, UserID: app.ApplicantID, Role: domain.PartyRoleMember, Lane: app.Lane, JoinedAt: now},
	}
	for _, m := range members {
		if err := tx.PartyMember.Create(ctx, m); err != nil {
			return nil, fmt.Errorf("add party member: %w", err)
		}
	}
	return party, nil
}

func resolutionOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrInvalidStateTransition):
		return "already_resolved"
	case errors.Is(err, domain.ErrNotAuthorized):
		return "forbidden"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrValidation):
		return "invalid"
	default:
		return "error"
	}
}
