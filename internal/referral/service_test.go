package referral

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/referly/backend/internal/cache"
	"github.com/referly/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory Store used by the service tests. The mutex
// makes SetRefererID a real compare-and-set so the concurrency tests
// exercise the same guarantee the database gives.
type fakeStore struct {
	mu     sync.Mutex
	nextID uint
	users  map[uint]*models.User

	// saveErrs is drained one error per SaveReferralCode call, simulating
	// unique-constraint collisions.
	saveErrs []error
}

func newFakeStore() *fakeStore {
	return &fakeStore{nextID: 1, users: make(map[uint]*models.User)}
}

func (f *fakeStore) addUser(email string) *models.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	user := &models.User{ID: f.nextID, Email: email, CreatedAt: time.Now()}
	f.users[user.ID] = user
	f.nextID++
	return user
}

func (f *fakeStore) snapshot(id uint) *models.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := *f.users[id]
	return &u
}

func (f *fakeStore) GetUser(_ context.Context, id uint) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	copy := *user
	return &copy, nil
}

func (f *fakeStore) FindUserByEmail(_ context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if user.Email == email {
			copy := *user
			return &copy, nil
		}
	}
	return nil, ErrUserNotFound
}

func (f *fakeStore) FindUserByCode(_ context.Context, code string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if user.ReferralCode != nil && *user.ReferralCode == code {
			copy := *user
			return &copy, nil
		}
	}
	return nil, ErrUserNotFound
}

func (f *fakeStore) ListUsersByReferer(_ context.Context, refererID uint) ([]models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var users []models.User
	for id := uint(1); id < f.nextID; id++ {
		user, ok := f.users[id]
		if ok && user.RefererID != nil && *user.RefererID == refererID {
			users = append(users, *user)
		}
	}
	return users, nil
}

func (f *fakeStore) SaveReferralCode(_ context.Context, user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.saveErrs) > 0 {
		err := f.saveErrs[0]
		f.saveErrs = f.saveErrs[1:]
		if err != nil {
			return err
		}
	}
	stored, ok := f.users[user.ID]
	if !ok {
		return ErrUserNotFound
	}
	stored.ReferralCode = user.ReferralCode
	stored.ReferralCodeExpiry = user.ReferralCodeExpiry
	return nil
}

func (f *fakeStore) SetRefererID(_ context.Context, userID, refererID uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	if user.RefererID != nil {
		return ErrRefererAlreadySet
	}
	user.RefererID = &refererID
	return nil
}

// recordingInvalidator captures the cache keys mutations evict.
type recordingInvalidator struct {
	mu   sync.Mutex
	keys []string
}

func (r *recordingInvalidator) Invalidate(_ context.Context, keys ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, keys...)
}

func newTestService(store *fakeStore) (*Service, *recordingInvalidator) {
	inv := &recordingInvalidator{}
	svc := NewService(store, inv)
	return svc, inv
}

func frozen(svc *Service, at time.Time) {
	svc.now = func() time.Time { return at }
}

func TestCreateCodeSetsExpiryFromClock(t *testing.T) {
	store := newFakeStore()
	user := store.addUser("alice@example.com")
	svc, _ := newTestService(store)

	at := time.Date(2024, 10, 17, 9, 34, 55, 0, time.UTC)
	frozen(svc, at)

	info, err := svc.CreateCode(context.Background(), user.ID, 30)
	require.NoError(t, err)

	assert.Equal(t, user.ID, info.UserID)
	assert.Len(t, info.ReferralCode, CodeLength)
	assert.False(t, info.IsExpired)

	stored := store.snapshot(user.ID)
	require.NotNil(t, stored.ReferralCodeExpiry)
	assert.Equal(t, time.Date(2024, 11, 16, 9, 34, 55, 0, time.UTC), stored.ReferralCodeExpiry.UTC())
}

func TestCreateCodeRejectsInvalidDays(t *testing.T) {
	store := newFakeStore()
	user := store.addUser("alice@example.com")
	svc, _ := newTestService(store)

	_, err := svc.CreateCode(context.Background(), user.ID, 0)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCreateCodeUnknownUser(t *testing.T) {
	svc, _ := newTestService(newFakeStore())

	_, err := svc.CreateCode(context.Background(), 42, 30)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateCodeOverwritesPreviousCode(t *testing.T) {
	store := newFakeStore()
	user := store.addUser("alice@example.com")
	svc, _ := newTestService(store)

	first, err := svc.CreateCode(context.Background(), user.ID, 30)
	require.NoError(t, err)
	second, err := svc.CreateCode(context.Background(), user.ID, 30)
	require.NoError(t, err)

	assert.NotEqual(t, first.ReferralCode, second.ReferralCode)

	// The old code no longer resolves
	_, err = svc.LookupByCode(context.Background(), first.ReferralCode)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateCodeRetriesOnceOnCollision(t *testing.T) {
	store := newFakeStore()
	user := store.addUser("alice@example.com")
	store.saveErrs = []error{ErrDuplicateCode}
	svc, _ := newTestService(store)

	info, err := svc.CreateCode(context.Background(), user.ID, 30)
	require.NoError(t, err)
	assert.Len(t, info.ReferralCode, CodeLength)
}

func TestCreateCodeGivesUpAfterSecondCollision(t *testing.T) {
	store := newFakeStore()
	user := store.addUser("alice@example.com")
	store.saveErrs = []error{ErrDuplicateCode, ErrDuplicateCode}
	svc, _ := newTestService(store)

	_, err := svc.CreateCode(context.Background(), user.ID, 30)
	assert.ErrorIs(t, err, ErrDependency)
}

func TestDeleteCodeClearsBothFields(t *testing.T) {
	store := newFakeStore()
	user := store.addUser("alice@example.com")
	svc, _ := newTestService(store)

	_, err := svc.CreateCode(context.Background(), user.ID, 30)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteCode(context.Background(), user.ID))

	stored := store.snapshot(user.ID)
	assert.Nil(t, stored.ReferralCode)
	assert.Nil(t, stored.ReferralCodeExpiry)

	// Deleting again is not an error
	assert.NoError(t, svc.DeleteCode(context.Background(), user.ID))
}

func TestLookupByCodeTreatsExpiredAsAbsent(t *testing.T) {
	store := newFakeStore()
	user := store.addUser("alice@example.com")
	svc, _ := newTestService(store)

	at := time.Date(2024, 10, 17, 9, 34, 55, 0, time.UTC)
	frozen(svc, at)

	info, err := svc.CreateCode(context.Background(), user.ID, 1)
	require.NoError(t, err)

	// Still valid just before expiry
	frozen(svc, at.Add(24*time.Hour-time.Second))
	found, err := svc.LookupByCode(context.Background(), info.ReferralCode)
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)

	// Expired: the row still holds the code but lookup reports absent
	frozen(svc, at.Add(24*time.Hour+time.Second))
	_, err = svc.LookupByCode(context.Background(), info.ReferralCode)
	assert.ErrorIs(t, err, ErrNotFound)

	stored := store.snapshot(user.ID)
	assert.NotNil(t, stored.ReferralCode, "expired codes are not purged")
}

func TestCodeInfoByEmailReportsExpiry(t *testing.T) {
	store := newFakeStore()
	user := store.addUser("alice@example.com")
	svc, _ := newTestService(store)

	at := time.Date(2024, 10, 17, 9, 34, 55, 0, time.UTC)
	frozen(svc, at)

	created, err := svc.CreateCode(context.Background(), user.ID, 1)
	require.NoError(t, err)

	frozen(svc, at.Add(48*time.Hour))
	info, err := svc.CodeInfoByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, created.ReferralCode, info.ReferralCode)
	assert.True(t, info.IsExpired, "owners see their code lapsed instead of a 404")
}

func TestRedeemSecondAttemptConflicts(t *testing.T) {
	store := newFakeStore()
	referer := store.addUser("alice@example.com")
	redeemer := store.addUser("bob@example.com")
	svc, _ := newTestService(store)

	info, err := svc.CreateCode(context.Background(), referer.ID, 30)
	require.NoError(t, err)

	_, err = svc.Redeem(context.Background(), redeemer.ID, info.ReferralCode)
	require.NoError(t, err)

	_, err = svc.Redeem(context.Background(), redeemer.ID, info.ReferralCode)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestRedeemUnknownOrExpiredCode(t *testing.T) {
	store := newFakeStore()
	redeemer := store.addUser("bob@example.com")
	svc, _ := newTestService(store)

	_, err := svc.Redeem(context.Background(), redeemer.ID, "NOSUCH99")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedeemConcurrentExactlyOneWins(t *testing.T) {
	store := newFakeStore()
	refererA := store.addUser("alice@example.com")
	refererB := store.addUser("carol@example.com")
	redeemer := store.addUser("bob@example.com")
	svc, _ := newTestService(store)

	infoA, err := svc.CreateCode(context.Background(), refererA.ID, 30)
	require.NoError(t, err)
	infoB, err := svc.CreateCode(context.Background(), refererB.ID, 30)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, code := range []string{infoA.ReferralCode, infoB.ReferralCode} {
		wg.Add(1)
		go func(i int, code string) {
			defer wg.Done()
			_, errs[i] = svc.Redeem(context.Background(), redeemer.ID, code)
		}(i, code)
	}
	wg.Wait()

	failures := 0
	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, ErrConflict)
			failures++
		}
	}
	assert.Equal(t, 1, failures, "exactly one of two concurrent redemptions must fail")

	stored := store.snapshot(redeemer.ID)
	require.NotNil(t, stored.RefererID)
	assert.Contains(t, []uint{refererA.ID, refererB.ID}, *stored.RefererID)
}

func TestListReferredOrderAndEmpty(t *testing.T) {
	store := newFakeStore()
	referer := store.addUser("alice@example.com")
	first := store.addUser("bob@example.com")
	second := store.addUser("carol@example.com")
	svc, _ := newTestService(store)

	info, err := svc.CreateCode(context.Background(), referer.ID, 30)
	require.NoError(t, err)

	_, err = svc.Redeem(context.Background(), first.ID, info.ReferralCode)
	require.NoError(t, err)
	_, err = svc.Redeem(context.Background(), second.ID, info.ReferralCode)
	require.NoError(t, err)

	referred, err := svc.ListReferred(context.Background(), referer.ID)
	require.NoError(t, err)
	require.Len(t, referred, 2)
	assert.Equal(t, first.ID, referred[0].ID)
	assert.Equal(t, second.ID, referred[1].ID)

	empty, err := svc.ListReferred(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMutationsInvalidateSharedCacheKeys(t *testing.T) {
	store := newFakeStore()
	user := store.addUser("alice@example.com")
	svc, inv := newTestService(store)

	_, err := svc.CreateCode(context.Background(), user.ID, 30)
	require.NoError(t, err)

	assert.Contains(t, inv.keys, cache.ReferralCodeByEmailKey("alice@example.com"))
	assert.Contains(t, inv.keys, cache.ReferredUsersKey(user.ID))

	inv.keys = nil
	require.NoError(t, svc.DeleteCode(context.Background(), user.ID))
	assert.Contains(t, inv.keys, cache.ReferralCodeByEmailKey("alice@example.com"))
}

func TestRedeemInvalidatesRefererListing(t *testing.T) {
	store := newFakeStore()
	referer := store.addUser("alice@example.com")
	redeemer := store.addUser("bob@example.com")
	svc, inv := newTestService(store)

	info, err := svc.CreateCode(context.Background(), referer.ID, 30)
	require.NoError(t, err)

	inv.keys = nil
	_, err = svc.Redeem(context.Background(), redeemer.ID, info.ReferralCode)
	require.NoError(t, err)
	assert.Contains(t, inv.keys, cache.ReferredUsersKey(referer.ID))
}

func TestCodeMutationsLeaveCredentialsAlone(t *testing.T) {
	store := newFakeStore()
	user := store.addUser("alice@example.com")
	store.users[user.ID].Password = "bcrypt-hash"
	store.users[user.ID].TwoFactorEnabled = true
	svc, _ := newTestService(store)

	_, err := svc.CreateCode(context.Background(), user.ID, 30)
	require.NoError(t, err)
	require.NoError(t, svc.DeleteCode(context.Background(), user.ID))

	stored := store.snapshot(user.ID)
	assert.Equal(t, "bcrypt-hash", stored.Password)
	assert.True(t, stored.TwoFactorEnabled)
}

func TestRedeemEndToEnd(t *testing.T) {
	store := newFakeStore()
	userA := store.addUser("alice@example.com")
	userB := store.addUser("bob@example.com")
	svc, _ := newTestService(store)

	info, err := svc.CreateCode(context.Background(), userA.ID, 1)
	require.NoError(t, err)

	_, err = svc.Redeem(context.Background(), userB.ID, info.ReferralCode)
	require.NoError(t, err)

	storedB := store.snapshot(userB.ID)
	require.NotNil(t, storedB.RefererID)
	assert.Equal(t, userA.ID, *storedB.RefererID)

	referred, err := svc.ListReferred(context.Background(), userA.ID)
	require.NoError(t, err)
	require.Len(t, referred, 1)
	assert.Equal(t, userB.ID, referred[0].ID)
}
