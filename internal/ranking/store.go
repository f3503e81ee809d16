// Package ranking implements the persistent skill-rating store: a sqlite
// table keyed by lowercase username holding credential hashes and TrueSkill
// parameters, plus in-memory tracking of the logged-in set.
package ranking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"

	"github.com/colosseumrl/colosseumrl/internal/rating"
)

// LoginResult enumerates the outcomes of a login attempt.
type LoginResult int

const (
	LoginSuccess LoginResult = iota
	LoginWrongCredential
	LoginAlreadyLoggedIn
	LoginUnknownUser
)

// Typed failures surfaced on the request path.
var (
	ErrWrongCredential = errors.New("ranking: wrong credential")
	ErrAlreadyLoggedIn = errors.New("ranking: user already logged in")
	ErrUnknownUser     = errors.New("ranking: unknown user")
)

// Err converts a failed login result into its sentinel error.
func (r LoginResult) Err() error {
	switch r {
	case LoginWrongCredential:
		return ErrWrongCredential
	case LoginAlreadyLoggedIn:
		return ErrAlreadyLoggedIn
	case LoginUnknownUser:
		return ErrUnknownUser
	default:
		return nil
	}
}

// Record is one player's stored row.
type Record struct {
	Username   string  `db:"username"`
	Credential string  `db:"credential"`
	Mu         float64 `db:"mu"`
	Sigma      float64 `db:"sigma"`
}

// Rating returns the record's skill estimate.
func (r Record) Rating() rating.Rating {
	return rating.Rating{Mu: r.Mu, Sigma: r.Sigma}
}

const schema = `
CREATE TABLE IF NOT EXISTS players (
	username   TEXT PRIMARY KEY,
	credential TEXT NOT NULL,
	mu         REAL NOT NULL,
	sigma      REAL NOT NULL
);`

// Store is the thread-safe ranking store. A single mutex serializes every
// read and write so no rating update observes interleaved partial writes.
type Store struct {
	mu       sync.Mutex
	db       *sqlx.DB
	updater  rating.Updater
	loggedIn map[string]bool
}

// New creates the store, running schema setup against the given database.
func New(db *sqlx.DB, updater rating.Updater) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("ranking: create schema: %w", err)
	}
	return &Store{
		db:       db,
		updater:  updater,
		loggedIn: make(map[string]bool),
	}, nil
}

// Get returns one player's record, or nil if the username is unknown.
func (s *Store) Get(ctx context.Context, username string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(ctx, username)
}

func (s *Store) get(ctx context.Context, username string) (*Record, error) {
	var rec Record
	err := s.db.GetContext(ctx, &rec,
		"SELECT username, credential, mu, sigma FROM players WHERE username = ?", strings.ToLower(username))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ranking: get %q: %w", username, err)
	}
	return &rec, nil
}

// GetMulti returns the records of several players in one consistent snapshot.
// Unknown usernames are simply absent from the result.
func (s *Store) GetMulti(ctx context.Context, usernames ...string) (map[string]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getMulti(ctx, usernames)
}

func (s *Store) getMulti(ctx context.Context, usernames []string) (map[string]Record, error) {
	if len(usernames) == 0 {
		return map[string]Record{}, nil
	}
	lowered := make([]string, len(usernames))
	for i, name := range usernames {
		lowered[i] = strings.ToLower(name)
	}
	query, args, err := sqlx.In("SELECT username, credential, mu, sigma FROM players WHERE username IN (?)", lowered)
	if err != nil {
		return nil, fmt.Errorf("ranking: build multi-get: %w", err)
	}
	var recs []Record
	if err := s.db.SelectContext(ctx, &recs, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("ranking: multi-get: %w", err)
	}
	out := make(map[string]Record, len(recs))
	for _, rec := range recs {
		out[rec.Username] = rec
	}
	return out, nil
}

// Set creates a player with the default rating. Creating an existing player
// is a no-op, so first sighting is idempotent.
func (s *Store) Set(ctx context.Context, username, credentialHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.get(ctx, username)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	stored, err := bcrypt.GenerateFromPassword([]byte(credentialHash), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("ranking: hash credential: %w", err)
	}
	def := rating.Default()
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO players (username, credential, mu, sigma) VALUES (?, ?, ?, ?)",
		strings.ToLower(username), string(stored), def.Mu, def.Sigma)
	if err != nil {
		return fmt.Errorf("ranking: create %q: %w", username, err)
	}
	return nil
}

// SetRating overwrites one player's skill parameters directly, bypassing the
// updater. Used by seeding and admin tooling.
func (s *Store) SetRating(ctx context.Context, username string, r rating.Rating) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE players SET mu = ?, sigma = ? WHERE username = ?",
		r.Mu, r.Sigma, strings.ToLower(username))
	if err != nil {
		return fmt.Errorf("ranking: set rating for %q: %w", username, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrUnknownUser
	}
	return nil
}

// Login verifies the credential and claims the username's single system-wide
// session.
func (s *Store) Login(ctx context.Context, username, credentialHash string) (LoginResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.get(ctx, username)
	if err != nil {
		return LoginWrongCredential, err
	}
	if rec == nil {
		return LoginUnknownUser, nil
	}
	if bcrypt.CompareHashAndPassword([]byte(rec.Credential), []byte(credentialHash)) != nil {
		return LoginWrongCredential, nil
	}
	key := strings.ToLower(username)
	if s.loggedIn[key] {
		return LoginAlreadyLoggedIn, nil
	}
	s.loggedIn[key] = true
	return LoginSuccess, nil
}

// Logoff releases a username's session. Logging off a user who is not logged
// in is a no-op; supervisors call this unconditionally on every outcome.
func (s *Store) Logoff(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.loggedIn, strings.ToLower(username))
}

// LoggedIn reports whether the username currently holds a session.
func (s *Store) LoggedIn(username string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loggedIn[strings.ToLower(username)]
}

// UpdateRanking performs one skill-rating pass across exactly the usernames
// in placements (rank 0 is best) and persists the new parameters in a single
// transaction, releasing the participants' logged-in flags under the same
// lock.
func (s *Store) UpdateRanking(ctx context.Context, placements map[string]int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lowered := make(map[string]int, len(placements))
	names := make([]string, 0, len(placements))
	for name, rank := range placements {
		key := strings.ToLower(name)
		lowered[key] = rank
		names = append(names, key)
	}

	recs, err := s.getMulti(ctx, names)
	if err != nil {
		return err
	}

	before := make(map[string]rating.Rating, len(recs))
	ranked := make(map[string]int, len(recs))
	for name, rec := range recs {
		before[name] = rec.Rating()
		ranked[name] = lowered[name]
	}

	after := s.updater.Update(before, ranked)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ranking: begin update: %w", err)
	}
	for name, r := range after {
		if _, err := tx.ExecContext(ctx,
			"UPDATE players SET mu = ?, sigma = ? WHERE username = ?", r.Mu, r.Sigma, name); err != nil {
			tx.Rollback()
			return fmt.Errorf("ranking: update %q: %w", name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ranking: commit update: %w", err)
	}

	for name := range lowered {
		delete(s.loggedIn, name)
	}
	return nil
}
