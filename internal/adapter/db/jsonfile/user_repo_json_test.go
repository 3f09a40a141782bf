package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	domain "user-records-service/internal/domain/user"
)

// failingFs wraps an afero.Fs and fails every write-mode open while failWrites is set.
type failingFs struct {
	afero.Fs
	failWrites atomic.Bool
}

func (f *failingFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if f.failWrites.Load() && flag&(os.O_WRONLY|os.O_RDWR) != 0 {
		return nil, errors.New("disk full")
	}
	return f.Fs.OpenFile(name, flag, perm)
}

func setupTestStore(t *testing.T, atomicWrite bool) (*UserRepoJSON, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "users.json")
	repo := NewUserRepoJSON(Options{Path: path, AtomicWrite: atomicWrite}, zaptest.NewLogger(t))
	return repo, path
}

func newUser(first, email string) *domain.User {
	return &domain.User{FirstName: first, LastName: "Doe", Email: email}
}

func TestInit_CreatesDirectoryAndEmptyFile(t *testing.T) {
	repo, path := setupTestStore(t, true)

	require.NoError(t, repo.Init(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(data))
}

func TestInit_ParseFailureIsFatalAndRetried(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/data/users.json", []byte("{not json"), 0o644))

	repo := NewUserRepoJSON(Options{Path: "/data/users.json", Fs: fs}, zaptest.NewLogger(t))

	err := repo.Init(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse data file")

	_, err = repo.List(context.Background())
	require.Error(t, err, "operations must not run against an uninitialized store")

	require.NoError(t, afero.WriteFile(fs, "/data/users.json", []byte("[]"), 0o644))
	require.NoError(t, repo.Init(context.Background()))
}

func TestInit_ReadOnlyFilesystemFails(t *testing.T) {
	repo := NewUserRepoJSON(Options{
		Path: "/data/users.json",
		Fs:   afero.NewReadOnlyFs(afero.NewMemMapFs()),
	}, zaptest.NewLogger(t))

	err := repo.Init(context.Background())
	assert.Error(t, err)
}

func TestInit_LoadsExistingFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	id := uuid.New()
	content := fmt.Sprintf(`[{"id":%q,"firstName":"Ann","lastName":"Lee","email":"ann@x.com",
		"createdAt":"2024-05-01T10:00:00Z","engagementLevel":"High"}]`, id)
	require.NoError(t, afero.WriteFile(fs, "/data/users.json", []byte(content), 0o644))

	repo := NewUserRepoJSON(Options{Path: "/data/users.json", Fs: fs}, zaptest.NewLogger(t))

	u, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "Ann", u.FirstName)
	assert.Equal(t, domain.EngagementHigh, *u.EngagementLevel)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), u.CreatedAt)
}

func TestInit_ConcurrentCallersLoadOnce(t *testing.T) {
	repo, _ := setupTestStore(t, true)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- repo.Init(ctx)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.True(t, repo.ready.Load())
	assert.Equal(t, stateReady, repo.state)
}

func TestCreate_AssignsIDAndCreatedAt(t *testing.T) {
	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	repo := NewUserRepoJSON(Options{
		Path: "/users.json",
		Fs:   afero.NewMemMapFs(),
		Now:  func() time.Time { return now },
	}, zaptest.NewLogger(t))

	in := newUser("John", "john@x.com")
	in.CreatedAt = time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC)

	created, err := repo.Create(context.Background(), in)
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.Equal(t, now, created.CreatedAt, "caller supplied createdAt must be overwritten")
	assert.Equal(t, uuid.Nil, in.ID, "input must not be mutated")
}

func TestCreate_KeepsCallerID(t *testing.T) {
	repo, _ := setupTestStore(t, true)
	ctx := context.Background()
	id := uuid.New()

	in := newUser("John", "john@x.com")
	in.ID = id
	created, err := repo.Create(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, id, created.ID)

	dup := newUser("Jane", "jane@x.com")
	dup.ID = id
	_, err = repo.Create(ctx, dup)
	assert.ErrorIs(t, err, ErrDuplicateID)
}

func TestCreate_RejectsDuplicateEmailCaseInsensitive(t *testing.T) {
	repo, _ := setupTestStore(t, true)
	ctx := context.Background()

	_, err := repo.Create(ctx, newUser("John", "john@x.com"))
	require.NoError(t, err)

	_, err = repo.Create(ctx, newUser("Johnny", "JOHN@X.COM"))
	assert.ErrorIs(t, err, domain.ErrEmailTaken)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCreate_ConcurrentSameEmailOnlyOneWins(t *testing.T) {
	repo, _ := setupTestStore(t, true)
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		taken     atomic.Int32
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.Create(ctx, newUser(fmt.Sprintf("U%d", i), "same@x.com"))
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, domain.ErrEmailTaken):
				taken.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, int32(15), taken.Load())
}

func TestGetByEmail_CaseInsensitive(t *testing.T) {
	repo, _ := setupTestStore(t, false)
	ctx := context.Background()

	created, err := repo.Create(ctx, newUser("John", "john@x.com"))
	require.NoError(t, err)

	found, err := repo.GetByEmail(ctx, "  John@X.com ")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, created.ID, found.ID)

	missing, err := repo.GetByEmail(ctx, "nobody@x.com")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestGetByID_ReturnsCopies(t *testing.T) {
	repo, _ := setupTestStore(t, true)
	ctx := context.Background()

	notes := "original"
	in := newUser("John", "john@x.com")
	in.Notes = &notes
	in.ExtractedTags = []string{"a"}
	created, err := repo.Create(ctx, in)
	require.NoError(t, err)

	got, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	got.FirstName = "Mutated"
	*got.Notes = "mutated"
	got.ExtractedTags[0] = "mutated"

	list, err := repo.List(ctx)
	require.NoError(t, err)
	list[0].LastName = "Mutated"

	again, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "John", again.FirstName)
	assert.Equal(t, "Doe", again.LastName)
	assert.Equal(t, "original", *again.Notes)
	assert.Equal(t, []string{"a"}, again.ExtractedTags)
}

func TestUpdate_PreservesCreatedAtAndID(t *testing.T) {
	repo, _ := setupTestStore(t, true)
	ctx := context.Background()

	created, err := repo.Create(ctx, newUser("John", "john@x.com"))
	require.NoError(t, err)

	changed := created.Clone()
	changed.LastName = "Smith"
	changed.CreatedAt = time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)

	ok, err := repo.Update(ctx, &changed)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Smith", got.LastName)
	assert.Equal(t, created.CreatedAt, got.CreatedAt)
	assert.Equal(t, created.ID, got.ID)
}

func TestUpdate_MissingUserDoesNotWrite(t *testing.T) {
	fs := &failingFs{Fs: afero.NewMemMapFs()}
	repo := NewUserRepoJSON(Options{Path: "/users.json", Fs: fs}, zaptest.NewLogger(t))
	require.NoError(t, repo.Init(context.Background()))

	fs.failWrites.Store(true)
	ok, err := repo.Update(context.Background(), newUser("Ghost", "ghost@x.com"))
	require.NoError(t, err, "a missing user must not trigger a write")
	assert.False(t, ok)
}

func TestUpdate_RejectsEmailHeldByAnotherUser(t *testing.T) {
	repo, _ := setupTestStore(t, true)
	ctx := context.Background()

	_, err := repo.Create(ctx, newUser("John", "john@x.com"))
	require.NoError(t, err)
	jane, err := repo.Create(ctx, newUser("Jane", "jane@x.com"))
	require.NoError(t, err)

	jane.Email = "JOHN@x.com"
	ok, err := repo.Update(ctx, jane)
	assert.ErrorIs(t, err, domain.ErrEmailTaken)
	assert.False(t, ok)

	jane.Email = "jane@x.com"
	jane.FirstName = "Janet"
	ok, err = repo.Update(ctx, jane)
	require.NoError(t, err, "keeping your own email is not a conflict")
	assert.True(t, ok)
}

func TestDelete_ThenGet(t *testing.T) {
	repo, _ := setupTestStore(t, true)
	ctx := context.Background()

	created, err := repo.Create(ctx, newUser("John", "john@x.com"))
	require.NoError(t, err)

	deleted, err := repo.Delete(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = repo.Delete(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, deleted)

	got, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	exists, err := repo.Exists(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRoundTrip_FreshInstanceSeesSameRecords(t *testing.T) {
	for _, atomicWrite := range []bool{true, false} {
		t.Run(fmt.Sprintf("atomic=%v", atomicWrite), func(t *testing.T) {
			repo, path := setupTestStore(t, atomicWrite)
			ctx := context.Background()

			score := -0.4
			analyzed := time.Date(2026, 2, 2, 2, 2, 2, 0, time.UTC)
			var want []domain.User
			for i := 0; i < 5; i++ {
				u := newUser(fmt.Sprintf("User%d", i), fmt.Sprintf("user%d@x.com", i))
				if i%2 == 0 {
					u.SentimentScore = &score
					u.ExtractedTags = []string{"tag"}
					u.EngagementLevel = domain.EngagementLow.Ptr()
					u.LastAnalyzedAt = &analyzed
				}
				created, err := repo.Create(ctx, u)
				require.NoError(t, err)
				want = append(want, *created)
			}

			fresh := NewUserRepoJSON(Options{Path: path, AtomicWrite: atomicWrite}, zaptest.NewLogger(t))
			got, err := fresh.List(ctx)
			require.NoError(t, err)
			require.Len(t, got, len(want))
			for i := range want {
				assert.Equal(t, want[i].ID, got[i].ID)
				assert.Equal(t, want[i].Email, got[i].Email)
				assert.True(t, want[i].CreatedAt.Equal(got[i].CreatedAt))
				assert.Equal(t, want[i].SentimentScore, got[i].SentimentScore)
				assert.Equal(t, want[i].ExtractedTags, got[i].ExtractedTags)
				assert.Equal(t, want[i].EngagementLevel, got[i].EngagementLevel)
			}

			entries, err := os.ReadDir(filepath.Dir(path))
			require.NoError(t, err)
			assert.Len(t, entries, 1, "no temp files may be left behind")
		})
	}
}

func TestPersist_FileIsPrettyPrintedCamelCase(t *testing.T) {
	repo, path := setupTestStore(t, true)

	_, err := repo.Create(context.Background(), newUser("John", "john@x.com"))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  {\n")
	assert.Contains(t, string(data), `"firstName": "John"`)

	var raw []map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	require.Len(t, raw, 1)
	assert.Contains(t, raw[0], "createdAt")
}

func TestCreate_WriteFailurePropagates(t *testing.T) {
	for _, atomicWrite := range []bool{true, false} {
		t.Run(fmt.Sprintf("atomic=%v", atomicWrite), func(t *testing.T) {
			fs := &failingFs{Fs: afero.NewMemMapFs()}
			repo := NewUserRepoJSON(Options{Path: "/data/users.json", Fs: fs, AtomicWrite: atomicWrite}, zaptest.NewLogger(t))
			require.NoError(t, repo.Init(context.Background()))

			fs.failWrites.Store(true)
			_, err := repo.Create(context.Background(), newUser("John", "john@x.com"))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "disk full")

			data, err := afero.ReadFile(fs, "/data/users.json")
			require.NoError(t, err)
			assert.JSONEq(t, "[]", string(data), "disk keeps the last successful write")
		})
	}
}

func TestOperations_HonourCancelledContextWhileWaiting(t *testing.T) {
	repo, _ := setupTestStore(t, true)
	require.NoError(t, repo.Init(context.Background()))

	require.NoError(t, repo.sem.Acquire(context.Background(), 1))
	defer repo.sem.Release(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := repo.List(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestModify_ReadModifyWrite(t *testing.T) {
	repo, _ := setupTestStore(t, true)
	ctx := context.Background()

	created, err := repo.Create(ctx, newUser("John", "john@x.com"))
	require.NoError(t, err)

	got, found, err := repo.Modify(ctx, created.ID, func(u *domain.User) error {
		u.FirstName = "Jon"
		u.ID = uuid.New()
		u.CreatedAt = time.Time{}
		return nil
	})
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "Jon", got.FirstName)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, created.CreatedAt, got.CreatedAt)

	_, found, err = repo.Modify(ctx, uuid.New(), func(u *domain.User) error { return nil })
	require.NoError(t, err)
	assert.False(t, found)

	abort := errors.New("abort")
	_, _, err = repo.Modify(ctx, created.ID, func(u *domain.User) error {
		u.FirstName = "Nope"
		return abort
	})
	assert.ErrorIs(t, err, abort)

	after, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Jon", after.FirstName)
}
