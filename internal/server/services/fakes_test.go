package services

import (
	"context"
	"database/sql"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/eventhub/internal/common"
	"github.com/dmitrijs2005/eventhub/internal/dbx"
	"github.com/dmitrijs2005/eventhub/internal/logging"
	"github.com/dmitrijs2005/eventhub/internal/server/config"
	"github.com/dmitrijs2005/eventhub/internal/server/models"
	"github.com/dmitrijs2005/eventhub/internal/server/repositories/resettokens"
	"github.com/dmitrijs2005/eventhub/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/eventhub/internal/server/repositories/smscodes"
	"github.com/dmitrijs2005/eventhub/internal/server/repositories/users"
)

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

// memDB is an in-memory stand-in for the four tables. WithTx snapshots the
// maps and restores them when the transaction body fails.
type memDB struct {
	mu sync.Mutex

	users    map[string]*models.User
	codes    map[string]*models.SMSCode
	resets   map[string]*models.ResetToken
	sessions map[string]*models.Session

	// failures injected by tests, keyed by operation name; failOnce entries
	// are removed after their first hit
	fail     map[string]error
	failOnce map[string]error

	txCount int
}

func newMemDB() *memDB {
	return &memDB{
		users:    map[string]*models.User{},
		codes:    map[string]*models.SMSCode{},
		resets:   map[string]*models.ResetToken{},
		sessions: map[string]*models.Session{},
		fail:     map[string]error{},
		failOnce: map[string]error{},
	}
}

func (m *memDB) Conn() dbx.DBTX { return nil }

func (m *memDB) WithTx(ctx context.Context, fn dbx.TxFunc) error {
	m.mu.Lock()
	m.txCount++
	u, c, r, s := maps.Clone(m.users), maps.Clone(m.codes), maps.Clone(m.resets), maps.Clone(m.sessions)
	m.mu.Unlock()

	if err := fn(ctx, nil); err != nil {
		m.mu.Lock()
		m.users, m.codes, m.resets, m.sessions = u, c, r, s
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *memDB) failure(op string) error {
	if err, ok := m.failOnce[op]; ok {
		delete(m.failOnce, op)
		return err
	}
	return m.fail[op]
}

// repo manager

type memRepoManager struct{ db *memDB }

func (rm memRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (rm memRepoManager) Users(dbx.DBTX) users.Repository              { return memUsers{rm.db} }
func (rm memRepoManager) SMSCodes(dbx.DBTX) smscodes.Repository        { return memCodes{rm.db} }
func (rm memRepoManager) ResetTokens(dbx.DBTX) resettokens.Repository  { return memResets{rm.db} }
func (rm memRepoManager) Sessions(dbx.DBTX) sessions.Repository        { return memSessions{rm.db} }

// users

type memUsers struct{ db *memDB }

func (r memUsers) Create(_ context.Context, u *models.User) (*models.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.failure("users.Create"); err != nil {
		return nil, err
	}
	for _, existing := range r.db.users {
		if (u.Phone != "" && existing.Phone == u.Phone) || (u.Email != "" && strings.EqualFold(existing.Email, u.Email)) {
			return nil, common.ErrAlreadyExists
		}
	}
	now := time.Now()
	u.CreatedAt, u.UpdatedAt = now, now
	cp := *u
	r.db.users[u.ID] = &cp
	return u, nil
}

func (r memUsers) find(match func(*models.User) bool) (*models.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.failure("users.Get"); err != nil {
		return nil, err
	}
	for _, u := range r.db.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r memUsers) GetByID(_ context.Context, id string) (*models.User, error) {
	return r.find(func(u *models.User) bool { return u.ID == id })
}

func (r memUsers) GetByPhone(_ context.Context, phone string) (*models.User, error) {
	return r.find(func(u *models.User) bool { return u.Phone == phone })
}

func (r memUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	return r.find(func(u *models.User) bool { return u.Email != "" && strings.EqualFold(u.Email, email) })
}

func (r memUsers) DeleteByIdentity(_ context.Context, phone, email string) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.failure("users.DeleteByIdentity"); err != nil {
		return 0, err
	}
	var n int64
	for id, u := range r.db.users {
		if (phone != "" && u.Phone == phone) || (email != "" && strings.EqualFold(u.Email, email)) {
			delete(r.db.users, id)
			r.db.cascade(id)
			n++
		}
	}
	return n, nil
}

// cascade mirrors ON DELETE CASCADE; callers hold mu.
func (m *memDB) cascade(userID string) {
	for h, t := range m.resets {
		if t.UserID == userID {
			delete(m.resets, h)
		}
	}
	for h, s := range m.sessions {
		if s.UserID == userID {
			delete(m.sessions, h)
		}
	}
}

func (r memUsers) UpdatePassword(_ context.Context, userID, hash string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.failure("users.UpdatePassword"); err != nil {
		return err
	}
	u, ok := r.db.users[userID]
	if !ok {
		return common.ErrorNotFound
	}
	cp := *u
	cp.PasswordHash = hash
	r.db.users[userID] = &cp
	return nil
}

// sms codes

type memCodes struct{ db *memDB }

func (r memCodes) Replace(_ context.Context, c *models.SMSCode) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.failure("codes.Replace"); err != nil {
		return err
	}
	cp := *c
	r.db.codes[c.Phone] = &cp
	return nil
}

func (r memCodes) GetForUpdate(_ context.Context, phone string) (*models.SMSCode, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.failure("codes.Get"); err != nil {
		return nil, err
	}
	c, ok := r.db.codes[phone]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *c
	return &cp, nil
}

func (r memCodes) Delete(_ context.Context, phone string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.failure("codes.Delete"); err != nil {
		return err
	}
	delete(r.db.codes, phone)
	return nil
}

func (r memCodes) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.failure("codes.DeleteExpired"); err != nil {
		return 0, err
	}
	var n int64
	for k, c := range r.db.codes {
		if c.IsExpired(now) {
			delete(r.db.codes, k)
			n++
		}
	}
	return n, nil
}

// reset tokens

type memResets struct{ db *memDB }

func (r memResets) Create(_ context.Context, t *models.ResetToken) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.failure("resets.Create"); err != nil {
		return err
	}
	cp := *t
	r.db.resets[t.TokenHash] = &cp
	return nil
}

func (r memResets) GetForUpdate(_ context.Context, hash string) (*models.ResetToken, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	t, ok := r.db.resets[hash]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *t
	return &cp, nil
}

func (r memResets) DeleteByUser(_ context.Context, userID string) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.failure("resets.DeleteByUser"); err != nil {
		return 0, err
	}
	var n int64
	for h, t := range r.db.resets {
		if t.UserID == userID {
			delete(r.db.resets, h)
			n++
		}
	}
	return n, nil
}

func (r memResets) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var n int64
	for h, t := range r.db.resets {
		if t.IsExpired(now) {
			delete(r.db.resets, h)
			n++
		}
	}
	return n, nil
}

// sessions

type memSessions struct{ db *memDB }

func (r memSessions) Create(_ context.Context, s *models.Session) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.failure("sessions.Create"); err != nil {
		return err
	}
	cp := *s
	r.db.sessions[s.TokenHash] = &cp
	return nil
}

func (r memSessions) Find(_ context.Context, hash string) (*models.Session, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.failure("sessions.Find"); err != nil {
		return nil, err
	}
	s, ok := r.db.sessions[hash]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *s
	return &cp, nil
}

func (r memSessions) Delete(_ context.Context, hash string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	delete(r.db.sessions, hash)
	return nil
}

func (r memSessions) DeleteByUser(_ context.Context, userID string) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.failure("sessions.DeleteByUser"); err != nil {
		return 0, err
	}
	var n int64
	for h, s := range r.db.sessions {
		if s.UserID == userID {
			delete(r.db.sessions, h)
			n++
		}
	}
	return n, nil
}

func (r memSessions) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var n int64
	for h, s := range r.db.sessions {
		if s.IsExpired(now) {
			delete(r.db.sessions, h)
			n++
		}
	}
	return n, nil
}

// collaborators

// plainHasher keeps tests fast; the real KDF is covered in package auth.
type plainHasher struct{ err error }

func (h plainHasher) Hash(p string) (string, error) {
	if h.err != nil {
		return "", h.err
	}
	return "plain$" + p, nil
}

func (h plainHasher) Verify(stored, candidate string) bool {
	return strings.HasPrefix(stored, "plain$") && stored == "plain$"+candidate
}

type sentSMS struct{ phone, text string }

type fakeSMS struct {
	mu   sync.Mutex
	sent []sentSMS
	err  error
}

func (f *fakeSMS) SendSMS(_ context.Context, phone, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentSMS{phone, text})
	return nil
}

type sentEmail struct{ to, subject, body string }

type fakeEmail struct {
	sent []sentEmail
	err  error
}

func (f *fakeEmail) SendEmail(_ context.Context, to, subject, body string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentEmail{to, subject, body})
	return nil
}

type fakeLimiter struct {
	allow    bool
	err      error
	keys     []string
	released []string
}

func (f *fakeLimiter) Release(_ context.Context, key string) error {
	f.released = append(f.released, key)
	return nil
}

func (f *fakeLimiter) Allow(_ context.Context, key string) (bool, error) {
	f.keys = append(f.keys, key)
	return f.allow, f.err
}

// fakeClock is a settable time source shared by all services of a fixture.
type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// fixture wires the real services over the in-memory store.
type fixture struct {
	db      *memDB
	clock   *fakeClock
	sms     *fakeSMS
	email   *fakeEmail
	cfg     *config.Config
	codes   *CodeService
	resets  *ResetService
	sess    *SessionService
	users   *UserService
	janitor *Janitor
}

func newFixture(mutate ...func(*config.Config)) *fixture {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	for _, m := range mutate {
		m(cfg)
	}

	db := newMemDB()
	rm := memRepoManager{db}
	clock := &fakeClock{t: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
	sms := &fakeSMS{}
	email := &fakeEmail{}
	log := logging.Nop{}

	f := &fixture{db: db, clock: clock, sms: sms, email: email, cfg: cfg}

	f.sess = NewSessionService(db, rm, cfg)
	f.sess.now = clock.Now
	f.codes = NewCodeService(db, rm, sms, nil, cfg, log)
	f.codes.now = clock.Now
	f.resets = NewResetService(db, rm, plainHasher{}, f.sess, email, cfg, log)
	f.resets.now = clock.Now
	f.users = NewUserService(db, rm, plainHasher{}, f.codes, f.resets, f.sess, cfg, log)
	f.janitor = NewJanitor(db, rm, log)
	f.janitor.now = clock.Now
	return f
}

func (f *fixture) userCount() int {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	return len(f.db.users)
}

func (f *fixture) lastSMSCode() string {
	f.sms.mu.Lock()
	defer f.sms.mu.Unlock()
	if len(f.sms.sent) == 0 {
		return ""
	}
	text := f.sms.sent[len(f.sms.sent)-1].text
	// "Your EventHub code: 1234. ..."
	_, rest, _ := strings.Cut(text, ": ")
	code, _, _ := strings.Cut(rest, ".")
	return code
}

func registerInput(phone string) RegisterInput {
	return RegisterInput{
		Phone:             phone,
		Password:          "abcdef",
		FullName:          "Ann Lee",
		PassportSeries:    "AB",
		PassportNumber:    "123456",
		PassportIssuedBy:  "Dept 1",
		PassportIssueDate: "2015-04-01",
		DateOfBirth:       "1990-01-01",
	}
}

