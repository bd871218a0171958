package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/sakif/mlvision/internal/apperror"
	"github.com/sakif/mlvision/internal/auth"
	"github.com/sakif/mlvision/internal/model"
	"github.com/sakif/mlvision/internal/repository"
)

// =========================================================================
// fakeUserRepo
// =========================================================================

// fakeUserRepo is an in-memory repository.UserRepository that enforces the
// same uniqueness rules as the real stores.
type fakeUserRepo struct {
	mu     sync.Mutex
	users  map[string]*model.User
	nextID int

	// set to a non-nil error to simulate a database failure
	createErr     error
	getByEmailErr error
	updateHashErr error

	// racingCreates makes the next N Create calls behave as if a concurrent
	// request inserted the same identity first: the user is stored under a
	// fresh ID and Create reports a conflict.
	racingCreates int

	createCalls int
}

var _ repository.UserRepository = (*fakeUserRepo)(nil)

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*model.User), nextID: 1}
}

// add stores u as-is and returns its ID.
func (f *fakeUserRepo) add(u model.User) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u.ID == "" {
		u.ID = f.newID()
	}
	f.users[u.ID] = &u
	return u.ID
}

func (f *fakeUserRepo) get(id string) *model.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil
	}
	cp := *u
	return &cp
}

func (f *fakeUserRepo) remove(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.users, id)
}

func (f *fakeUserRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.users)
}

func (f *fakeUserRepo) newID() string {
	id := fmt.Sprintf("user-%d", f.nextID)
	f.nextID++
	return id
}

func (f *fakeUserRepo) conflictField(u *model.User, skipID string) string {
	for _, other := range f.users {
		if other.ID == skipID {
			continue
		}
		if other.Email == u.Email {
			return "email"
		}
		if u.GoogleID != nil && other.GoogleID != nil && *u.GoogleID == *other.GoogleID {
			return "google_id"
		}
		if u.GitHubID != nil && other.GitHubID != nil && *u.GitHubID == *other.GitHubID {
			return "github_id"
		}
	}
	return ""
}

func (f *fakeUserRepo) Create(_ context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++

	if f.createErr != nil {
		return f.createErr
	}

	if f.racingCreates > 0 {
		f.racingCreates--
		winner := *user
		winner.ID = f.newID()
		f.users[winner.ID] = &winner
		return apperror.ConflictOn("email", nil)
	}

	if field := f.conflictField(user, ""); field != "" {
		return apperror.ConflictOn(field, nil)
	}

	user.ID = f.newID()
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	cp := *user
	f.users[user.ID] = &cp
	return nil
}

func (f *fakeUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	if u := f.get(id); u != nil {
		return u, nil
	}
	return nil, apperror.NotFound("user", id)
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getByEmailErr != nil {
		return nil, f.getByEmailErr
	}
	for _, u := range f.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperror.NotFound("user", email)
}

func (f *fakeUserRepo) GetByExternalID(_ context.Context, provider model.Provider, externalID string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.ExternalID(provider) == externalID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperror.NotFound("user", externalID)
}

func (f *fakeUserRepo) LinkExternalAccount(_ context.Context, userID string, provider model.Provider, externalID string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[userID]
	if !ok {
		return nil, apperror.NotFound("user", userID)
	}
	switch current := u.ExternalID(provider); {
	case current == externalID:
	case current != "":
		return nil, apperror.New(apperror.ErrAccountLinkConflict, "account already linked")
	default:
		probe := model.User{}
		probe.SetExternalID(provider, externalID)
		if field := f.conflictField(&probe, userID); field != "" && field != "email" {
			return nil, apperror.ConflictOn(field, nil)
		}
		u.SetExternalID(provider, externalID)
		u.UpdatedAt = time.Now()
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUserRepo) UpdatePasswordHash(_ context.Context, userID, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateHashErr != nil {
		return f.updateHashErr
	}
	u, ok := f.users[userID]
	if !ok {
		return apperror.NotFound("user", userID)
	}
	u.PasswordHash = &hash
	return nil
}

func (f *fakeUserRepo) UpdateAccess(_ context.Context, userID string, access repository.UserAccess) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return nil, apperror.NotFound("user", userID)
	}
	u.TenantID = access.TenantID
	u.Roles = model.StringList(access.Roles)
	u.Permissions = model.StringList(access.Permissions)
	u.Active = access.Active
	u.UpdatedAt = time.Now()
	cp := *u
	return &cp, nil
}

func (f *fakeUserRepo) Ping(context.Context) error { return nil }

// =========================================================================
// fakeProvider
// =========================================================================

// fakeProvider is a scripted auth.ProviderAdapter.
type fakeProvider struct {
	name        model.Provider
	profile     *auth.ProviderProfile
	exchangeErr error
	profileErr  error

	exchangedCodes []string
}

var _ auth.ProviderAdapter = (*fakeProvider)(nil)

func (p *fakeProvider) Provider() model.Provider { return p.name }

func (p *fakeProvider) AuthorizationURL(state string) string {
	return "https://idp.example/" + p.name.String() + "/authorize?state=" + state
}

func (p *fakeProvider) ExchangeCode(_ context.Context, code string) (*oauth2.Token, error) {
	p.exchangedCodes = append(p.exchangedCodes, code)
	if p.exchangeErr != nil {
		return nil, p.exchangeErr
	}
	return &oauth2.Token{AccessToken: "upstream-" + code}, nil
}

func (p *fakeProvider) FetchProfile(context.Context, *oauth2.Token) (*auth.ProviderProfile, error) {
	if p.profileErr != nil {
		return nil, p.profileErr
	}
	cp := *p.profile
	return &cp, nil
}

func strPtr(s string) *string { return &s }
