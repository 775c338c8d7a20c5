package fakeuserrepo

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/go-logistics-auth/internal/errors"
	"github.com/jrsteele09/go-logistics-auth/users"
)

var _ users.UserRepo = (*FakeUserRepo)(nil)

// FakeUserRepo keeps copies of users in memory so callers cannot mutate stored state
// without going through Update.
type FakeUserRepo struct {
	users map[string]*users.User
	lock  sync.RWMutex
}

func NewFakeUserRepo() *FakeUserRepo {
	return &FakeUserRepo{
		users: make(map[string]*users.User),
	}
}

func (ur *FakeUserRepo) Create(_ context.Context, user *users.User) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if _, exists := ur.users[user.ID]; exists {
		return apperrors.Wrapf(apperrors.ErrConflict, "user id %s", user.ID)
	}
	if err := ur.checkUnique(user); err != nil {
		return err
	}
	ur.users[user.ID] = clone(user)
	return nil
}

func (ur *FakeUserRepo) Update(_ context.Context, user *users.User) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	if _, exists := ur.users[user.ID]; !exists {
		return apperrors.ErrNotFound
	}
	if err := ur.checkUnique(user); err != nil {
		return err
	}
	ur.users[user.ID] = clone(user)
	return nil
}

func (ur *FakeUserRepo) GetByID(_ context.Context, id string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	u, ok := ur.users[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return clone(u), nil
}

func (ur *FakeUserRepo) GetByUsername(_ context.Context, username string) (*users.User, error) {
	return ur.find(func(u *users.User) bool { return strings.EqualFold(u.Username, username) })
}

func (ur *FakeUserRepo) GetByEmail(_ context.Context, email string) (*users.User, error) {
	if email == "" {
		return nil, apperrors.ErrNotFound
	}
	return ur.find(func(u *users.User) bool { return strings.EqualFold(u.Email, email) })
}

func (ur *FakeUserRepo) GetByPhone(_ context.Context, phone string) (*users.User, error) {
	if phone == "" {
		return nil, apperrors.ErrNotFound
	}
	return ur.find(func(u *users.User) bool { return u.Phone == phone })
}

func (ur *FakeUserRepo) List(_ context.Context, offset, limit int) ([]*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	userList := make([]*users.User, 0, len(ur.users))
	for _, v := range ur.users {
		userList = append(userList, clone(v))
	}
	sort.Slice(userList, func(i, j int) bool {
		return userList[i].Username < userList[j].Username
	})

	if offset >= len(userList) {
		return nil, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(userList) {
		end = len(userList)
	}
	return userList[offset:end], nil
}

func (ur *FakeUserRepo) SetLastLogin(_ context.Context, id string, at time.Time) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	u, ok := ur.users[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	u.LastLogin = at
	return nil
}

func (ur *FakeUserRepo) find(match func(*users.User) bool) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	for _, u := range ur.users {
		if match(u) {
			return clone(u), nil
		}
	}
	return nil, apperrors.ErrNotFound
}

// checkUnique must be called with the write lock held.
func (ur *FakeUserRepo) checkUnique(user *users.User) error {
	for id, existing := range ur.users {
		if id == user.ID {
			continue
		}
		switch {
		case strings.EqualFold(existing.Username, user.Username):
			return apperrors.Wrapf(apperrors.ErrConflict, "username %s", user.Username)
		case user.Email != "" && strings.EqualFold(existing.Email, user.Email):
			return apperrors.Wrapf(apperrors.ErrConflict, "email %s", user.Email)
		case user.Phone != "" && existing.Phone == user.Phone:
			return apperrors.Wrapf(apperrors.ErrConflict, "phone %s", user.Phone)
		}
	}
	return nil
}

func clone(u *users.User) *users.User {
	c := *u
	if u.CompanyID != nil {
		companyID := *u.CompanyID
		c.CompanyID = &companyID
	}
	return &c
}
