package jsonfile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"user-records-service/internal/domain/user"
)

// ErrDuplicateID is returned when a caller-supplied id is already in use.
var ErrDuplicateID = errors.New("user id already in use")

type storeState int32

const (
	stateUninitialized storeState = iota
	stateInitializing
	stateReady
)

// Options configures a UserRepoJSON.
type Options struct {
	Path        string           // Path of the backing JSON file
	AtomicWrite bool             // AtomicWrite writes to a temp file and renames it over Path
	Fs          afero.Fs         // Fs defaults to the OS filesystem
	Now         func() time.Time // Now defaults to time.Now
}

// UserRepoJSON keeps the user collection in memory and mirrors every
// mutation to a single JSON file.
//
// All reads and writes hold one binary semaphore for their whole duration,
// including the disk write. Waiting for the semaphore honours ctx; once held,
// an operation runs to completion.
type UserRepoJSON struct {
	fs          afero.Fs
	path        string
	atomicWrite bool
	now         func() time.Time
	log         *zap.Logger

	sem   *semaphore.Weighted
	ready atomic.Bool

	// guarded by sem
	state storeState
	users []user.User
}

// NewUserRepoJSON creates a store for opts.Path. The file is not touched
// until Init or the first operation.
func NewUserRepoJSON(opts Options, log *zap.Logger) *UserRepoJSON {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &UserRepoJSON{
		fs:          opts.Fs,
		path:        filepath.Clean(opts.Path),
		atomicWrite: opts.AtomicWrite,
		now:         opts.Now,
		log:         log,
		sem:         semaphore.NewWeighted(1),
	}
}

// Path returns the backing file path.
func (r *UserRepoJSON) Path() string {
	return r.path
}

// Init loads the backing file, creating it (and its directory) when missing.
// Concurrent callers block until the first one finishes; only that caller
// does the work.
func (r *UserRepoJSON) Init(ctx context.Context) error {
	if r.ready.Load() {
		return nil
	}
	return r.withLock(ctx, func() error { return nil })
}

// List returns copies of every user in store order.
func (r *UserRepoJSON) List(ctx context.Context) ([]user.User, error) {
	var out []user.User
	err := r.withLock(ctx, func() error {
		out = make([]user.User, len(r.users))
		for i := range r.users {
			out[i] = r.users[i].Clone()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetByID returns a copy of the user with id, or nil when absent.
func (r *UserRepoJSON) GetByID(ctx context.Context, id uuid.UUID) (*user.User, error) {
	var found *user.User
	err := r.withLock(ctx, func() error {
		if i := r.indexOf(id); i >= 0 {
			c := r.users[i].Clone()
			found = &c
		}
		return nil
	})
	return found, err
}

// GetByEmail returns a copy of the user whose email matches case-insensitively,
// or nil when absent.
func (r *UserRepoJSON) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	var found *user.User
	err := r.withLock(ctx, func() error {
		if i := r.indexOfEmail(email, uuid.Nil); i >= 0 {
			c := r.users[i].Clone()
			found = &c
		}
		return nil
	})
	return found, err
}

// Exists reports whether a user with id is stored.
func (r *UserRepoJSON) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var ok bool
	err := r.withLock(ctx, func() error {
		ok = r.indexOf(id) >= 0
		return nil
	})
	return ok, err
}

// Create appends u and persists the collection. A zero id is replaced by a
// fresh one and CreatedAt is always set to the current time. The email must
// not already be held by another user.
func (r *UserRepoJSON) Create(ctx context.Context, u *user.User) (*user.User, error) {
	if u == nil {
		return nil, errors.New("user cannot be nil")
	}

	var created user.User
	err := r.withLock(ctx, func() error {
		candidate := u.Clone()
		if candidate.ID == uuid.Nil {
			candidate.ID = r.freshID()
		} else if r.indexOf(candidate.ID) >= 0 {
			return fmt.Errorf("%w: %s", ErrDuplicateID, candidate.ID)
		}
		// Emails are unique under the lock, whatever the caller checked.
		if r.indexOfEmail(candidate.Email, uuid.Nil) >= 0 {
			return user.ErrEmailTaken
		}
		candidate.CreatedAt = r.now().UTC()

		r.users = append(r.users, candidate)
		if err := r.persist(); err != nil {
			r.log.Error("failed to persist created user", zap.String("id", candidate.ID.String()), zap.Error(err))
			return fmt.Errorf("failed to create user: %w", err)
		}
		created = candidate.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.log.Info("user created in store", zap.String("id", created.ID.String()))
	return &created, nil
}

// Update replaces the stored user with the same id. CreatedAt is always
// carried over from the stored version. It returns false without writing
// when no such user exists.
func (r *UserRepoJSON) Update(ctx context.Context, u *user.User) (bool, error) {
	if u == nil {
		return false, errors.New("user cannot be nil")
	}

	var updated bool
	err := r.withLock(ctx, func() error {
		i := r.indexOf(u.ID)
		if i < 0 {
			return nil
		}
		if r.indexOfEmail(u.Email, u.ID) >= 0 {
			return user.ErrEmailTaken
		}

		next := u.Clone()
		next.CreatedAt = r.users[i].CreatedAt
		r.users[i] = next
		if err := r.persist(); err != nil {
			r.log.Error("failed to persist updated user", zap.String("id", u.ID.String()), zap.Error(err))
			return fmt.Errorf("failed to update user: %w", err)
		}
		updated = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if updated {
		r.log.Info("user updated in store", zap.String("id", u.ID.String()))
	} else {
		r.log.Debug("update skipped, user not in store", zap.String("id", u.ID.String()))
	}
	return updated, nil
}

// Modify applies fn to a copy of the stored user and writes the result back
// in the same critical section. The id and CreatedAt cannot be changed by fn.
// If fn returns an error nothing is written. It returns false when no such
// user exists.
func (r *UserRepoJSON) Modify(ctx context.Context, id uuid.UUID, fn func(u *user.User) error) (*user.User, bool, error) {
	var (
		result *user.User
		found  bool
	)
	err := r.withLock(ctx, func() error {
		i := r.indexOf(id)
		if i < 0 {
			return nil
		}
		found = true

		next := r.users[i].Clone()
		if err := fn(&next); err != nil {
			return err
		}
		next.ID = r.users[i].ID
		next.CreatedAt = r.users[i].CreatedAt
		if r.indexOfEmail(next.Email, id) >= 0 {
			return user.ErrEmailTaken
		}

		r.users[i] = next
		if err := r.persist(); err != nil {
			return fmt.Errorf("failed to modify user: %w", err)
		}
		c := next.Clone()
		result = &c
		return nil
	})
	if err != nil {
		return nil, found, err
	}
	return result, found, nil
}

// Delete removes the user with id and persists. It reports whether a user
// was removed.
func (r *UserRepoJSON) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	var deleted bool
	err := r.withLock(ctx, func() error {
		i := r.indexOf(id)
		if i < 0 {
			return nil
		}
		r.users = slices.Delete(r.users, i, i+1)
		deleted = true
		if err := r.persist(); err != nil {
			r.log.Error("failed to persist after delete", zap.String("id", id.String()), zap.Error(err))
			return fmt.Errorf("failed to delete user: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	if deleted {
		r.log.Info("user deleted from store", zap.String("id", id.String()))
	}
	return deleted, nil
}

// withLock acquires the store semaphore, makes sure the store is loaded and
// runs fn.
func (r *UserRepoJSON) withLock(ctx context.Context, fn func() error) error {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire user store lock: %w", err)
	}
	defer r.sem.Release(1)

	if err := r.ensureReadyLocked(); err != nil {
		return err
	}
	return fn()
}

func (r *UserRepoJSON) ensureReadyLocked() error {
	if r.state == stateReady {
		return nil
	}

	r.state = stateInitializing
	r.log.Debug("initializing user store", zap.String("path", r.path))
	if err := r.load(); err != nil {
		r.state = stateUninitialized
		r.users = nil
		r.log.Error("failed to initialize user store", zap.String("path", r.path), zap.Error(err))
		return fmt.Errorf("failed to initialize user store: %w", err)
	}
	r.state = stateReady
	r.ready.Store(true)

	r.log.Info("user store ready", zap.String("path", r.path), zap.Int("users", len(r.users)))
	return nil
}

// load reads the backing file, creating the directory and an empty file when
// they do not exist yet.
func (r *UserRepoJSON) load() error {
	if err := r.fs.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	data, err := afero.ReadFile(r.fs, r.path)
	if errors.Is(err, fs.ErrNotExist) {
		r.users = []user.User{}
		if err := r.persist(); err != nil {
			return fmt.Errorf("create data file: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("read data file: %w", err)
	}

	users := []user.User{}
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &users); err != nil {
			return fmt.Errorf("parse data file %s: %w", r.path, err)
		}
	}
	if users == nil {
		users = []user.User{}
	}
	r.users = users
	return nil
}

// persist writes the whole collection to disk.
func (r *UserRepoJSON) persist() error {
	data, err := json.MarshalIndent(r.users, "", "  ")
	if err != nil {
		return fmt.Errorf("encode users: %w", err)
	}

	if !r.atomicWrite {
		return afero.WriteFile(r.fs, r.path, data, 0o644)
	}
	return r.writeAtomic(data)
}

func (r *UserRepoJSON) writeAtomic(data []byte) error {
	dir := filepath.Dir(r.path)
	tmp, err := afero.TempFile(r.fs, dir, filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	cleanup := func() {
		_ = r.fs.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := r.fs.Rename(tmpName, r.path); err != nil {
		cleanup()
		return fmt.Errorf("replace data file: %w", err)
	}
	return nil
}

func (r *UserRepoJSON) indexOf(id uuid.UUID) int {
	return slices.IndexFunc(r.users, func(u user.User) bool { return u.ID == id })
}

// indexOfEmail finds a user with email other than except.
func (r *UserRepoJSON) indexOfEmail(email string, except uuid.UUID) int {
	email = strings.TrimSpace(email)
	return slices.IndexFunc(r.users, func(u user.User) bool {
		return u.ID != except && strings.EqualFold(u.Email, email)
	})
}

func (r *UserRepoJSON) freshID() uuid.UUID {
	for {
		id := uuid.New()
		if r.indexOf(id) < 0 {
			return id
		}
	}
}
