package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dom/rally-league/internal/domain"
	"github.com/dom/rally-league/internal/metrics"
	"github.com/dom/rally-league/internal/notify"
	"github.com/dom/rally-league/internal/repository"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

const (
	messagePageSize = 200
	reconcileBatch  = 50
)

type PartyService struct {
	repos    *repository.Repositories
	stats    *StatsResolver
	notifier *notify.Notifier
	channels notify.Evictor
	logger   *slog.Logger
	now      func() time.Time
}

// NewPartyService builds the service. channels may be nil, in which case
// live subscriptions are left to lapse on their own.
func NewPartyService(repos *repository.Repositories, stats *StatsResolver, notifier *notify.Notifier, channels notify.Evictor, logger *slog.Logger) *PartyService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PartyService{
		repos:    repos,
		stats:    stats,
		notifier: notifier,
		channels: channels,
		logger:   logger,
		now:      time.Now,
	}
}

// MemberLeftEvent is published on a party channel when someone leaves.
type MemberLeftEvent struct {
	PartyID   uuid.UUID `json:"partyId"`
	UserID    uuid.UUID `json:"userId"`
	Remaining int64     `json:"remaining"`
}

// DisbandedEvent is published on a party channel when the party is removed.
type DisbandedEvent struct {
	PartyID uuid.UUID `json:"partyId"`
	By      uuid.UUID `json:"by"`
}

func (s *PartyService) ListForUser(ctx context.Context, userID uuid.UUID) ([]*domain.PartyMembership, error) {
	parties, err := s.repos.Party.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if parties == nil {
		parties = []*domain.PartyMembership{}
	}
	return parties, nil
}

// IsMember reports whether userID holds a membership row in partyID.
func (s *PartyService) IsMember(ctx context.Context, partyID, userID uuid.UUID) (bool, error) {
	_, err := s.repos.PartyMember.Get(ctx, partyID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// GetMembers returns the roster, leader first, with each member's public
// profile. Only members may view it.
func (s *PartyService) GetMembers(ctx context.Context, partyID, actingUserID uuid.UUID) ([]*domain.RosterEntry, error) {
	if err := s.requireMember(ctx, partyID, actingUserID); err != nil {
		return nil, err
	}

	members, err := s.repos.PartyMember.ListByParty(ctx, partyID)
	if err != nil {
		return nil, err
	}

	users := make([]*domain.User, 0, len(members))
	for _, m := range members {
		if m.User != nil {
			users = append(users, m.User)
		}
	}
	summaries := s.stats.Summaries(ctx, users)

	roster := make([]*domain.RosterEntry, 0, len(members))
	for _, m := range members {
		summary, ok := summaries[m.UserID]
		if !ok {
			summary = domain.UserSummary{ID: m.UserID}
		}
		roster = append(roster, &domain.RosterEntry{
			UserSummary: summary,
			Role:        m.Role,
			Lane:        m.Lane,
			JoinedAt:    m.JoinedAt,
		})
	}
	return roster, nil
}

// Leave removes userID from the party. The last member out deletes the
// party along with its chat history. Leadership is never reassigned.
func (s *PartyService) Leave(ctx context.Context, partyID, userID uuid.UUID) error {
	ctx, span := tracer.Start(ctx, "PartyService.Leave", trace.WithAttributes(
		attribute.String("party.id", partyID.String()),
	))
	defer span.End()

	var remaining int64
	err := s.repos.Tx.WithinTransaction(ctx, func(tx *repository.Repositories) error {
		if _, err := tx.Party.GetByIDForUpdate(ctx, partyID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrPartyNotFound
			}
			return err
		}

		removed, err := tx.PartyMember.Delete(ctx, partyID, userID)
		if err != nil {
			return err
		}
		if !removed {
			return domain.ErrNotAMember
		}

		remaining, err = tx.PartyMember.Count(ctx, partyID)
		if err != nil {
			return err
		}
		if remaining > 0 {
			return nil
		}
		return deleteParty(ctx, tx, partyID)
	})
	if err != nil {
		span.RecordError(err)
		return err
	}

	s.logger.Info("member left party",
		"party_id", partyID,
		"user_id", userID,
		"remaining", remaining,
	)
	channel := notify.PartyChannel(partyID)
	if s.channels != nil {
		if remaining == 0 {
			s.channels.CloseChannel(channel)
		} else {
			s.channels.Evict(channel, userID)
		}
	}
	s.notifier.Notify(ctx, channel, notify.EventPartyMemberLeft, MemberLeftEvent{
		PartyID:   partyID,
		UserID:    userID,
		Remaining: remaining,
	})
	return nil
}

// Disband deletes the party, its memberships and its chat. Only the leader
// may do this.
func (s *PartyService) Disband(ctx context.Context, partyID, actingUserID uuid.UUID) error {
	ctx, span := tracer.Start(ctx, "PartyService.Disband", trace.WithAttributes(
		attribute.String("party.id", partyID.String()),
	))
	defer span.End()

	err := s.repos.Tx.WithinTransaction(ctx, func(tx *repository.Repositories) error {
		if _, err := tx.Party.GetByIDForUpdate(ctx, partyID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrPartyNotFound
			}
			return err
		}
		member, err := tx.PartyMember.Get(ctx, partyID, actingUserID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrNotAMember
			}
			return err
		}
		if member.Role != domain.PartyRoleLeader {
			return domain.ErrNotPartyLeader
		}
		return deleteParty(ctx, tx, partyID)
	})
	if err != nil {
		span.RecordError(err)
		return err
	}

	s.logger.Info("party disbanded", "party_id", partyID, "leader_id", actingUserID)
	channel := notify.PartyChannel(partyID)
	s.notifier.Notify(ctx, channel, notify.EventPartyDisbanded, DisbandedEvent{
		PartyID: partyID,
		By:      actingUserID,
	})
	if s.channels != nil {
		s.channels.CloseChannel(channel)
	}
	return nil
}

// SendMessage appends a chat message and pushes it to the party channel.
// Sends to one party are serialized on the party row, and each message is
// stamped later than the one before it, so CreatedAt order matches commit
// order for pollers.
func (s *PartyService) SendMessage(ctx context.Context, partyID, senderID uuid.UUID, content string) (*domain.ChatMessageView, error) {
	content, err := domain.ValidateChatContent(content)
	if err != nil {
		return nil, err
	}

	var (
		msg    *domain.ChatMessage
		sender *domain.User
	)
	err = s.repos.Tx.WithinTransaction(ctx, func(tx *repository.Repositories) error {
		if _, err := tx.Party.GetByIDForUpdate(ctx, partyID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrNotAMember
			}
			return err
		}
		member, err := tx.PartyMember.Get(ctx, partyID, senderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrNotAMember
			}
			return err
		}
		sender, err = tx.User.GetByID(ctx, member.UserID)
		if err != nil {
			return err
		}

		// Postgres keeps microseconds; truncating keeps cursors exact.
		at := s.now().UTC().Truncate(time.Microsecond)
		latest, err := tx.ChatMessage.Latest(ctx, partyID)
		switch {
		case err == nil:
			if !at.After(latest.CreatedAt) {
				at = latest.CreatedAt.Add(time.Microsecond)
			}
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		msg = &domain.ChatMessage{
			ID:        uuid.New(),
			PartyID:   partyID,
			SenderID:  senderID,
			Content:   content,
			CreatedAt: at,
		}
		return tx.ChatMessage.Create(ctx, msg)
	})
	if err != nil {
		return nil, err
	}

	view := &domain.ChatMessageView{
		ChatMessage:  msg,
		SenderName:   sender.DisplayName,
		SenderRiotID: sender.RiotID,
	}
	s.notifier.Notify(ctx, notify.PartyChannel(partyID), notify.EventChatMessage, view)
	return view, nil
}

// ListMessages returns chat history oldest first. cursor.After pages
// forward from a message the caller already holds; cursor.Since keeps only
// messages strictly newer than a timestamp.
func (s *PartyService) ListMessages(ctx context.Context, partyID, actingUserID uuid.UUID, cursor domain.ChatCursor) ([]*domain.ChatMessageView, error) {
	if err := s.requireMember(ctx, partyID, actingUserID); err != nil {
		return nil, err
	}

	var (
		msgs []*domain.ChatMessage
		err  error
	)
	if cursor.After != nil {
		after, lookupErr := s.repos.ChatMessage.GetByID(ctx, partyID, *cursor.After)
		if lookupErr != nil {
			if errors.Is(lookupErr, gorm.ErrRecordNotFound) {
				return nil, domain.NewValidationError("after", "unknown message in this party")
			}
			return nil, lookupErr
		}
		msgs, err = s.repos.ChatMessage.ListAfter(ctx, partyID, after, messagePageSize)
	} else {
		msgs, err = s.repos.ChatMessage.ListByParty(ctx, partyID, cursor.Since, messagePageSize)
	}
	if err != nil {
		return nil, err
	}

	views := make([]*domain.ChatMessageView, 0, len(msgs))
	for _, m := range msgs {
		v := &domain.ChatMessageView{ChatMessage: m}
		if m.Sender != nil {
			v.SenderName = m.Sender.DisplayName
			v.SenderRiotID = m.Sender.RiotID
		}
		views = append(views, v)
	}
	return views, nil
}

// Reconcile creates the party for any accepted application that lacks one.
// It returns how many parties were repaired.
func (s *PartyService) Reconcile(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "PartyService.Reconcile")
	defer span.End()

	apps, err := s.repos.Application.ListAcceptedWithoutParty(ctx, reconcileBatch)
	if err != nil {
		return 0, err
	}

	repaired := 0
	for _, app := range apps {
		post, err := s.repos.Post.GetByIDUnscoped(ctx, app.PostID)
		if err != nil {
			s.logger.Error("reconcile: load post", "application_id", app.ID, "error", err)
			continue
		}

		now := s.now()
		var party *domain.Party
		err = s.repos.Tx.WithinTransaction(ctx, func(tx *repository.Repositories) error {
			party, err = materializeParty(ctx, tx, app, post, now)
			return err
		})
		if err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				continue
			}
			s.logger.Error("reconcile: create party", "application_id", app.ID, "error", err)
			continue
		}

		repaired++
		metrics.RecordPartyRepair()
		s.logger.Warn("repaired accepted application without party",
			"application_id", app.ID,
			"party_id", party.ID,
			"post_id", post.ID,
		)
	}
	span.SetAttributes(attribute.Int("parties.repaired", repaired))
	return repaired, nil
}

func (s *PartyService) requireMember(ctx context.Context, partyID, userID uuid.UUID) error {
	ok, err := s.IsMember(ctx, partyID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrNotAMember
	}
	return nil
}

func deleteParty(ctx context.Context, tx *repository.Repositories, partyID uuid.UUID) error {
	if err := tx.ChatMessage.DeleteByParty(ctx, partyID); err != nil {
		return err
	}
	if err := tx.PartyMember.DeleteByParty(ctx, partyID); err != nil {
		return err
	}
	return tx.Party.Delete(ctx, partyID)
}
