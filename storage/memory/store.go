package memorystore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/open-rails/recoverykit/core"
)

// Store is a mutex-guarded in-memory core.Store for tests and single-process
// development. Rows are copied in and out so callers cannot alias state.
type Store struct {
	mu          sync.Mutex
	users       map[string]core.UserAccount // by email
	pending     map[string]core.PendingRegistration
	otps        map[string]core.OTPChallenge
	resetTokens map[string]core.ResetToken
	pendingSeq  map[string]int64
	otpSeq      map[string]int64
	seq         int64
}

var _ core.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		users:       make(map[string]core.UserAccount),
		pending:     make(map[string]core.PendingRegistration),
		otps:        make(map[string]core.OTPChallenge),
		resetTokens: make(map[string]core.ResetToken),
		pendingSeq:  make(map[string]int64),
		otpSeq:      make(map[string]int64),
	}
}

func key(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

func (s *Store) FindUserByEmail(_ context.Context, email string) (*core.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[key(email)]
	if !ok {
		return nil, core.ErrNotFound
	}
	return &u, nil
}

func (s *Store) InsertUser(_ context.Context, u *core.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(u.Email)
	if _, ok := s.users[k]; ok {
		return core.ErrDuplicate
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	s.users[k] = *u
	return nil
}

func (s *Store) UpdatePasswordHash(_ context.Context, email, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(email)
	u, ok := s.users[k]
	if !ok {
		return core.ErrNotFound
	}
	u.PasswordHash = hash
	s.users[k] = u
	return nil
}

// Users returns a snapshot of all accounts.
func (s *Store) Users() []core.UserAccount {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.UserAccount, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out
}

// nextSeq orders rows created within the same clock tick.
func (s *Store) nextSeq() int64 { s.seq++; return s.seq }

type seqRow struct {
	created time.Time
	seq     int64
}

func newer(a, b seqRow) bool {
	if !a.created.Equal(b.created) {
		return a.created.After(b.created)
	}
	return a.seq > b.seq
}

// ---- pending registrations ----

func (s *Store) FindLatestPendingByEmail(_ context.Context, email string) (*core.PendingRegistration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *core.PendingRegistration
	var bestRow seqRow
	for id, p := range s.pending {
		if p.Email != key(email) {
			continue
		}
		row := seqRow{p.CreatedAt, s.pendingSeq[id]}
		if best == nil || newer(row, bestRow) {
			cp := p
			best, bestRow = &cp, row
		}
	}
	if best == nil {
		return nil, core.ErrNotFound
	}
	return best, nil
}

func (s *Store) FindPendingByToken(_ context.Context, token string) (*core.PendingRegistration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.pending {
		if p.Token == token {
			cp := p
			return &cp, nil
		}
	}
	return nil, core.ErrNotFound
}

func (s *Store) InsertPending(_ context.Context, p *core.PendingRegistration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.Email = key(p.Email)
	s.pending[p.ID] = *p
	s.pendingSeq[p.ID] = s.nextSeq()
	return nil
}

func (s *Store) DeletePending(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[id]; !ok {
		return false, nil
	}
	delete(s.pending, id)
	delete(s.pendingSeq, id)
	return true, nil
}

func (s *Store) DeleteExpiredPending(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, p := range s.pending {
		if !now.Before(p.ExpiresAt) {
			delete(s.pending, id)
			delete(s.pendingSeq, id)
			n++
		}
	}
	return n, nil
}

// Pending returns a snapshot of pending registrations.
func (s *Store) Pending() []core.PendingRegistration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.PendingRegistration, 0, len(s.pending))
	for _, p := range s.pending {
		out = append(out, p)
	}
	return out
}

// ---- OTP challenges ----

func (s *Store) FindLatestOTPByEmail(_ context.Context, email string) (*core.OTPChallenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *core.OTPChallenge
	var bestRow seqRow
	for id, o := range s.otps {
		if o.Email != key(email) {
			continue
		}
		row := seqRow{o.CreatedAt, s.otpSeq[id]}
		if best == nil || newer(row, bestRow) {
			cp := o
			best, bestRow = &cp, row
		}
	}
	if best == nil {
		return nil, core.ErrNotFound
	}
	return best, nil
}

func (s *Store) InsertOTP(_ context.Context, o *core.OTPChallenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	o.Email = key(o.Email)
	s.otps[o.ID] = *o
	s.otpSeq[o.ID] = s.nextSeq()
	return nil
}

func (s *Store) IncrementOTPAttempts(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.otps[id]
	if !ok {
		return 0, core.ErrNotFound
	}
	o.Attempts++
	s.otps[id] = o
	return o.Attempts, nil
}

func (s *Store) DeleteOTP(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.otps[id]; !ok {
		return false, nil
	}
	delete(s.otps, id)
	delete(s.otpSeq, id)
	return true, nil
}

func (s *Store) DeleteExpiredOTPs(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, o := range s.otps {
		if !now.Before(o.ExpiresAt) {
			delete(s.otps, id)
			delete(s.otpSeq, id)
			n++
		}
	}
	return n, nil
}

// OTPs returns a snapshot of OTP challenges.
func (s *Store) OTPs() []core.OTPChallenge {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.OTPChallenge, 0, len(s.otps))
	for _, o := range s.otps {
		out = append(out, o)
	}
	return out
}

// ---- reset tokens ----

func (s *Store) FindResetToken(_ context.Context, token string) (*core.ResetToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.resetTokens {
		if t.Token == token {
			cp := t
			return &cp, nil
		}
	}
	return nil, core.ErrNotFound
}

func (s *Store) InsertResetToken(_ context.Context, t *core.ResetToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.Email = key(t.Email)
	s.resetTokens[t.ID] = *t
	return nil
}

func (s *Store) DeleteResetToken(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.resetTokens[id]; !ok {
		return false, nil
	}
	delete(s.resetTokens, id)
	return true, nil
}

func (s *Store) DeleteExpiredResetTokens(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, t := range s.resetTokens {
		if !now.Before(t.ExpiresAt) {
			delete(s.resetTokens, id)
			n++
		}
	}
	return n, nil
}

// ResetTokens returns a snapshot of reset tokens.
func (s *Store) ResetTokens() []core.ResetToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.ResetToken, 0, len(s.resetTokens))
	for _, t := range s.resetTokens {
		out = append(out, t)
	}
	return out
}
