package user

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/workout-ledger/internal/domain"
	apperrors "github.com/Proton-105/workout-ledger/internal/errors"
	"github.com/Proton-105/workout-ledger/internal/testutil"
	"github.com/Proton-105/workout-ledger/pkg/config"
)

type mockLedger struct {
	mock.Mock
}

func (m *mockLedger) EnsureUsers(ctx context.Context, users []domain.User) error {
	return m.Called(ctx, users).Error(0)
}

func (m *mockLedger) Users(ctx context.Context) ([]domain.User, error) {
	args := m.Called(ctx)
	users, _ := args.Get(0).([]domain.User)
	return users, args.Error(1)
}

func (m *mockLedger) User(ctx context.Context, userID string) (*domain.User, error) {
	args := m.Called(ctx, userID)
	u, _ := args.Get(0).(*domain.User)
	return u, args.Error(1)
}

func (m *mockLedger) UserByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error) {
	args := m.Called(ctx, telegramID)
	u, _ := args.Get(0).(*domain.User)
	return u, args.Error(1)
}

func (m *mockLedger) Profile(ctx context.Context, userID string) (*domain.Profile, error) {
	args := m.Called(ctx, userID)
	p, _ := args.Get(0).(*domain.Profile)
	return p, args.Error(1)
}

func (m *mockLedger) RenameUser(ctx context.Context, userID, name string) (*domain.User, error) {
	args := m.Called(ctx, userID, name)
	u, _ := args.Get(0).(*domain.User)
	return u, args.Error(1)
}

func (m *mockLedger) LinkTelegram(ctx context.Context, userID string, telegramID int64) (*domain.User, error) {
	args := m.Called(ctx, userID, telegramID)
	u, _ := args.Get(0).(*domain.User)
	return u, args.Error(1)
}

type mapCache struct {
	profiles map[string]domain.Profile
	gets     int
}

func (c *mapCache) Get(_ context.Context, id string) (*domain.Profile, error) {
	c.gets++
	p, ok := c.profiles[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (c *mapCache) Set(_ context.Context, p *domain.Profile) error {
	c.profiles[p.User.ID] = *p
	return nil
}

func TestFromConfig(t *testing.T) {
	users := FromConfig([]config.UserConfig{
		{ID: "a", DisplayName: " Alex ", TelegramID: 10},
		{ID: "b"},
	})

	require.Len(t, users, 2)
	assert.Equal(t, domain.User{ID: "a", DisplayName: "Alex", TelegramID: 10}, users[0])
	assert.Equal(t, "b", users[1].DisplayName)
}

func TestBootstrap_LinksChangedTelegramIDs(t *testing.T) {
	ledger := &mockLedger{}
	ctx := context.Background()
	configured := []domain.User{{ID: "a", DisplayName: "Alex", TelegramID: 10}, {ID: "b", DisplayName: "Sam"}}

	ledger.On("EnsureUsers", ctx, configured).Return(nil).Once()
	ledger.On("Users", ctx).Return([]domain.User{
		{ID: "a", DisplayName: "Lex", TelegramID: 0},
		{ID: "b", DisplayName: "Sam"},
	}, nil).Once()
	ledger.On("LinkTelegram", ctx, "a", int64(10)).Return(&domain.User{ID: "a", TelegramID: 10}, nil).Once()

	svc := NewService(ledger, nil, testutil.Logger())
	require.NoError(t, svc.Bootstrap(ctx, configured))

	ledger.AssertExpectations(t)
	ledger.AssertNotCalled(t, "RenameUser", mock.Anything, mock.Anything, mock.Anything)
}

func TestBootstrap_StopsOnValidationError(t *testing.T) {
	ledger := &mockLedger{}
	ctx := context.Background()

	ledger.On("EnsureUsers", ctx, mock.Anything).Return(apperrors.NewValidationError("bad")).Once()

	svc := NewService(ledger, nil, testutil.Logger())
	assert.Error(t, svc.Bootstrap(ctx, []domain.User{{ID: ""}}))
	ledger.AssertExpectations(t)
}

func TestReconcile_OnlyWritesChangedFields(t *testing.T) {
	ledger := &mockLedger{}
	ctx := context.Background()

	previous := []domain.User{{ID: "a", DisplayName: "Alex"}, {ID: "b", DisplayName: "Sam", TelegramID: 1}}
	current := []domain.User{
		{ID: "a", DisplayName: "Alex"},
		{ID: "b", DisplayName: "Samantha", TelegramID: 2},
		{ID: "c", DisplayName: "Chris"},
	}

	ledger.On("RenameUser", ctx, "b", "Samantha").Return(&domain.User{ID: "b"}, nil).Once()
	ledger.On("LinkTelegram", ctx, "b", int64(2)).Return(&domain.User{ID: "b"}, nil).Once()
	ledger.On("EnsureUsers", ctx, []domain.User{{ID: "c", DisplayName: "Chris"}}).Return(nil).Once()

	svc := NewService(ledger, nil, testutil.Logger())
	require.NoError(t, svc.Reconcile(ctx, previous, current))
	ledger.AssertExpectations(t)
}

func TestProfile_ReadThrough(t *testing.T) {
	ledger := &mockLedger{}
	cache := &mapCache{profiles: map[string]domain.Profile{}}
	ctx := context.Background()

	ledger.On("Profile", ctx, "a").Return(&domain.Profile{User: domain.User{ID: "a"}}, nil).Once()

	svc := NewService(ledger, cache, testutil.Logger())

	for i := 0; i < 3; i++ {
		p, err := svc.Profile(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, "a", p.User.ID)
	}

	ledger.AssertNumberOfCalls(t, "Profile", 1)
	assert.Equal(t, 3, cache.gets)
}

func TestGetAndFindByTelegramID(t *testing.T) {
	ledger := &mockLedger{}
	ctx := context.Background()
	ledger.On("User", ctx, "b").Return(&domain.User{ID: "b"}, nil)
	ledger.On("User", ctx, "z").Return(nil, apperrors.NewNotFoundError("user"))
	ledger.On("UserByTelegramID", ctx, int64(5)).Return(&domain.User{ID: "a", TelegramID: 5}, nil)

	svc := NewService(ledger, nil, testutil.Logger())

	u, err := svc.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "b", u.ID)

	_, err = svc.Get(ctx, "z")
	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperrors.CodeNotFound, appErr.Code)

	u, err = svc.FindByTelegramID(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, "a", u.ID)

	_, err = svc.FindByTelegramID(ctx, 0)
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperrors.CodeNotFound, appErr.Code)

	ledger.AssertNotCalled(t, "Users", mock.Anything)
	ledger.AssertNotCalled(t, "UserByTelegramID", mock.Anything, int64(0))
}
