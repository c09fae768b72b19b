package testutil

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/dom/rally-league/internal/domain"
	"github.com/dom/rally-league/internal/repository"
	"github.com/dom/rally-league/internal/riot"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// FakeStatsLookup stands in for the Riot client. By default every Riot ID
// resolves to DefaultStats; set LookupFunc to change that.
type FakeStatsLookup struct {
	LookupFunc func(ctx context.Context, riotID string) (*domain.RankedStats, error)

	mu    sync.Mutex
	calls []string
}

var _ riot.StatsLookup = (*FakeStatsLookup)(nil)

func NewFakeStatsLookup() *FakeStatsLookup {
	return &FakeStatsLookup{}
}

// DefaultStats is what FakeStatsLookup returns when LookupFunc is unset.
func DefaultStats() *domain.RankedStats {
	return &domain.RankedStats{
		SummonerLevel: 312,
		ProfileIconID: 4568,
		IconURL:       "https://ddragon.leagueoflegends.com/cdn/14.1.1/img/profileicon/4568.png",
		Solo: &domain.QueueStats{
			Tier:         domain.TierGold,
			Rank:         "II",
			LeaguePoints: 54,
			Wins:         61,
			Losses:       58,
		},
	}
}

func (f *FakeStatsLookup) Lookup(ctx context.Context, riotID string) (*domain.RankedStats, error) {
	f.mu.Lock()
	f.calls = append(f.calls, riotID)
	fn := f.LookupFunc
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, riotID)
	}
	if _, err := domain.ParseRiotID(riotID); err != nil {
		return nil, err
	}
	return DefaultStats(), nil
}

// Calls returns the Riot IDs looked up so far.
func (f *FakeStatsLookup) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Failing makes every lookup return err.
func (f *FakeStatsLookup) Failing(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.LookupFunc = func(context.Context, string) (*domain.RankedStats, error) {
		return nil, err
	}
}

// PublishedEvent is one call observed by RecordingRelay.
type PublishedEvent struct {
	Channel string
	Event   string
	Payload json.RawMessage
}

// Eviction is one revocation observed by RecordingRelay. UserID is
// uuid.Nil when the whole channel was closed.
type Eviction struct {
	Channel string
	UserID  uuid.UUID
}

// RecordingRelay keeps every published event and eviction for assertions.
type RecordingRelay struct {
	mu        sync.Mutex
	events    []PublishedEvent
	evictions []Eviction
}

func (r *RecordingRelay) Publish(ctx context.Context, channel, event string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, PublishedEvent{Channel: channel, Event: event, Payload: raw})
	return nil
}

func (r *RecordingRelay) Events() []PublishedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]PublishedEvent(nil), r.events...)
}

// Find returns the events published with the given name.
func (r *RecordingRelay) Find(event string) []PublishedEvent {
	var out []PublishedEvent
	for _, e := range r.Events() {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func (r *RecordingRelay) Evict(channel string, userID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evictions = append(r.evictions, Eviction{Channel: channel, UserID: userID})
}

func (r *RecordingRelay) CloseChannel(channel string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evictions = append(r.evictions, Eviction{Channel: channel})
}

func (r *RecordingRelay) Evictions() []Eviction {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Eviction(nil), r.evictions...)
}

func (r *RecordingRelay) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
	r.evictions = nil
}

// MemorySessions keeps sessions in memory. Set PruneErr to make
// DeleteExpired fail.
type MemorySessions struct {
	PruneErr error

	mu       sync.Mutex
	sessions map[uuid.UUID]domain.UserSession
}

var _ repository.SessionRepository = (*MemorySessions)(nil)

func NewMemorySessions() *MemorySessions {
	return &MemorySessions{sessions: make(map[uuid.UUID]domain.UserSession)}
}

func (m *MemorySessions) Create(ctx context.Context, session *domain.UserSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.ID] = *session
	return nil
}

func (m *MemorySessions) GetByID(ctx context.Context, id uuid.UUID) (*domain.UserSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &session, nil
}

func (m *MemorySessions) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	return ok, nil
}

func (m *MemorySessions) DeleteByUserID(ctx context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if s.UserID == userID {
			delete(m.sessions, id)
		}
	}
	return nil
}

func (m *MemorySessions) DeleteExpired(ctx context.Context, userID uuid.UUID, now time.Time) error {
	if m.PruneErr != nil {
		return m.PruneErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if s.UserID == userID && !s.ExpiresAt.After(now) {
			delete(m.sessions, id)
		}
	}
	return nil
}
