package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/OlivMer765/auth-service/config"
	"github.com/OlivMer765/auth-service/internal/domain/entity"
	repo "github.com/OlivMer765/auth-service/internal/domain/repository"
	"github.com/OlivMer765/auth-service/pkg/helpers"
)

// fakeStore implements both repository interfaces in memory, mirroring the
// store contracts: case-insensitive email/username matching, exact token
// matching, hydrated reads and the single-membership role swap.
type fakeStore struct {
	users       map[string]*entity.User
	roles       map[string]*entity.Role
	memberships map[string]string // userID -> roleID

	roleSwaps int
}

func newFakeStore() *fakeStore {
	fs := &fakeStore{
		users:       map[string]*entity.User{},
		roles:       map[string]*entity.Role{},
		memberships: map[string]string{},
	}
	for i, name := range []string{"ADMIN", "USER", "GUEST"} {
		id := fmt.Sprintf("role-%d", i+1)
		fs.roles[id] = &entity.Role{ID: id, Name: name}
	}
	return fs
}

func (fs *fakeStore) roleIDByName(name string) string {
	for id, r := range fs.roles {
		if strings.EqualFold(r.Name, name) {
			return id
		}
	}
	return ""
}

func cloneUser(u *entity.User) *entity.User {
	c := *u
	if u.Profile != nil {
		p := *u.Profile
		c.Profile = &p
	}
	if u.EmailState != nil {
		e := *u.EmailState
		if u.EmailState.VerificationToken != nil {
			t := *u.EmailState.VerificationToken
			e.VerificationToken = &t
		}
		if u.EmailState.VerifiedAt != nil {
			v := *u.EmailState.VerifiedAt
			e.VerifiedAt = &v
		}
		c.EmailState = &e
	}
	if u.PasswordReset != nil {
		r := *u.PasswordReset
		if u.PasswordReset.ResetToken != nil {
			t := *u.PasswordReset.ResetToken
			r.ResetToken = &t
		}
		if u.PasswordReset.RequestedAt != nil {
			v := *u.PasswordReset.RequestedAt
			r.RequestedAt = &v
		}
		c.PasswordReset = &r
	}
	return &c
}

func (fs *fakeStore) hydrate(u *entity.User) *entity.User {
	c := cloneUser(u)
	c.Roles = nil
	if rid, ok := fs.memberships[c.ID]; ok {
		c.Roles = append(c.Roles, entity.UserRole{
			ID:       "m-" + c.ID,
			UserID:   c.ID,
			RoleID:   rid,
			RoleName: fs.roles[rid].Name,
		})
	}
	return c
}

func (fs *fakeStore) GetByID(_ context.Context, id string) (*entity.User, error) {
	u, ok := fs.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, repo.ErrNotFound)
	}
	return fs.hydrate(u), nil
}

func (fs *fakeStore) GetByEmail(_ context.Context, email string) (*entity.User, error) {
	for _, u := range fs.users {
		if strings.EqualFold(u.Email, email) {
			return fs.hydrate(u), nil
		}
	}
	return nil, nil
}

func (fs *fakeStore) GetByUsername(_ context.Context, username string) (*entity.User, error) {
	for _, u := range fs.users {
		if strings.EqualFold(u.Username, username) {
			return fs.hydrate(u), nil
		}
	}
	return nil, nil
}

func (fs *fakeStore) GetByEmailVerificationToken(_ context.Context, token string) (*entity.User, error) {
	for _, u := range fs.users {
		if u.EmailState != nil && u.EmailState.VerificationToken != nil && *u.EmailState.VerificationToken == token {
			return fs.hydrate(u), nil
		}
	}
	return nil, nil
}

func (fs *fakeStore) GetByPasswordResetToken(_ context.Context, token string) (*entity.User, error) {
	for _, u := range fs.users {
		if u.PasswordReset != nil && u.PasswordReset.ResetToken != nil && *u.PasswordReset.ResetToken == token {
			return fs.hydrate(u), nil
		}
	}
	return nil, nil
}

func (fs *fakeStore) Create(ctx context.Context, u *entity.User) (*entity.User, error) {
	for _, existing := range fs.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return nil, fmt.Errorf("users_email_lower_key: %w", repo.ErrDuplicate)
		}
		if strings.EqualFold(existing.Username, u.Username) {
			return nil, fmt.Errorf("users_username_lower_key: %w", repo.ErrDuplicate)
		}
	}
	fs.users[u.ID] = cloneUser(u)
	return fs.GetByID(ctx, u.ID)
}

func (fs *fakeStore) Update(ctx context.Context, u *entity.User) (*entity.User, error) {
	if _, ok := fs.users[u.ID]; !ok {
		return nil, fmt.Errorf("user %s: %w", u.ID, repo.ErrNotFound)
	}
	fs.users[u.ID] = cloneUser(u)
	return fs.GetByID(ctx, u.ID)
}

func (fs *fakeStore) Delete(_ context.Context, id string) error {
	if _, ok := fs.users[id]; !ok {
		return fmt.Errorf("user %s: %w", id, repo.ErrNotFound)
	}
	delete(fs.users, id)
	delete(fs.memberships, id)
	return nil
}

func (fs *fakeStore) ExistsByEmail(_ context.Context, email string) (bool, error) {
	for _, u := range fs.users {
		if strings.EqualFold(u.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (fs *fakeStore) ExistsByUsername(_ context.Context, username string) (bool, error) {
	for _, u := range fs.users {
		if strings.EqualFold(u.Username, username) {
			return true, nil
		}
	}
	return false, nil
}

func (fs *fakeStore) UpdateUserRole(_ context.Context, userID, roleID string) error {
	fs.memberships[userID] = roleID
	fs.roleSwaps++
	return nil
}

func (fs *fakeStore) GetByName(_ context.Context, name string) (*entity.Role, error) {
	if id := fs.roleIDByName(name); id != "" {
		r := *fs.roles[id]
		return &r, nil
	}
	return nil, nil
}

func (fs *fakeStore) CountUsersInRole(_ context.Context, roleID string) (int64, error) {
	var n int64
	for _, rid := range fs.memberships {
		if rid == roleID {
			n++
		}
	}
	return n, nil
}

func (fs *fakeStore) GetUsersByRole(_ context.Context, roleName string) ([]*entity.User, error) {
	id := fs.roleIDByName(roleName)
	var out []*entity.User
	for uid, rid := range fs.memberships {
		if rid == id {
			if u, ok := fs.users[uid]; ok {
				out = append(out, fs.hydrate(u))
			}
		}
	}
	return out, nil
}

func (fs *fakeStore) GetUserRoleNames(_ context.Context, userID string) ([]string, error) {
	if rid, ok := fs.memberships[userID]; ok {
		return []string{fs.roles[rid].Name}, nil
	}
	return []string{}, nil
}

var (
	_ repo.UserRepository = (*fakeStore)(nil)
	_ repo.RoleRepository = (*fakeStore)(nil)
)

func testConfig() *config.Config {
	return &config.Config{
		DefaultRoleName:  "USER",
		VerifyTokenTTL:   24 * time.Hour,
		ResetTokenTTL:    30 * time.Minute,
		VerifyEmailURL:   "http://localhost/verify",
		ResetPasswordURL: "http://localhost/reset",
		CompanyName:      "Acme",
	}
}

func newTestService(fs *fakeStore) *Service {
	var idSeq, tokSeq int
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	return &Service{
		Users: fs,
		Roles: fs,
		JWT:   helpers.NewJWTManager("access-secret", "refresh-secret", time.Hour, 24*time.Hour),
		Cfg:   testConfig(),
		NewID: func() (string, error) {
			idSeq++
			return fmt.Sprintf("id-%04d", idSeq), nil
		},
		NewToken: func(int) (string, error) {
			tokSeq++
			return fmt.Sprintf("tok-%04d", tokSeq), nil
		},
		Now: func() time.Time { return now },
	}
}

func registerAlice(t *testing.T, svc *Service) *entity.User {
	t.Helper()
	u, err := svc.Register(context.Background(), RegisterInput{
		Name:     "Alice",
		Surname:  "Smith",
		Username: "alice",
		Email:    "Alice@Example.com",
		Password: "sup3rsecret",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return u
}

func TestRegister(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	u := registerAlice(t, svc)

	if u.ID == "" {
		t.Fatal("expected generated id")
	}
	if u.Password == "sup3rsecret" {
		t.Fatal("password stored in plain text")
	}
	if !helpers.CheckPassword(u.Password, "sup3rsecret") {
		t.Fatal("stored hash does not match password")
	}
	if u.EmailState == nil || u.EmailState.VerificationToken == nil {
		t.Fatal("expected pending verification token")
	}
	if u.EmailState.Verified() {
		t.Fatal("new account must not be verified")
	}
	if got := u.RoleNames(); len(got) != 1 || got[0] != "USER" {
		t.Fatalf("default role = %v, want [USER]", got)
	}
}

func TestRegisterDuplicate(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	registerAlice(t, svc)

	_, err := svc.Register(context.Background(), RegisterInput{
		Name: "Other", Username: "other", Email: "ALICE@example.COM", Password: "password1",
	})
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("err = %v, want ErrEmailTaken", err)
	}

	_, err = svc.Register(context.Background(), RegisterInput{
		Name: "Other", Username: "ALICE", Email: "other@example.com", Password: "password1",
	})
	if !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("err = %v, want ErrUsernameTaken", err)
	}
}

func TestAuthenticate(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	registerAlice(t, svc)

	for _, login := range []string{"alice@example.com", "Alice@Example.com", "alice", "ALICE"} {
		u, err := svc.Authenticate(context.Background(), login, "sup3rsecret")
		if err != nil {
			t.Fatalf("Authenticate(%q): %v", login, err)
		}
		if u.Username != "alice" {
			t.Fatalf("Authenticate(%q) resolved %q", login, u.Username)
		}
	}

	if _, err := svc.Authenticate(context.Background(), "alice", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password err = %v, want ErrInvalidCredentials", err)
	}
	if _, err := svc.Authenticate(context.Background(), "nobody@example.com", "sup3rsecret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown email err = %v, want ErrInvalidCredentials", err)
	}
}

func TestAuthenticateDisabledAccount(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	u := registerAlice(t, svc)

	stored := fs.users[u.ID]
	stored.Status = false

	if _, err := svc.Authenticate(context.Background(), "alice", "sup3rsecret"); !errors.Is(err, ErrAccountDisabled) {
		t.Fatalf("err = %v, want ErrAccountDisabled", err)
	}
}

func TestLoginIssuesTokenPair(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	u := registerAlice(t, svc)

	got, pair, err := svc.Login(context.Background(), "alice", "sup3rsecret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if got.ID != u.ID {
		t.Fatalf("logged in user %q, want %q", got.ID, u.ID)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("expected both tokens")
	}
	claims, err := svc.JWT.ParseAccessToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("ParseAccessToken: %v", err)
	}
	if claims.UserID != u.ID {
		t.Fatalf("claims.UserID = %q, want %q", claims.UserID, u.ID)
	}
}

func TestRefreshRotatesPair(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	u := registerAlice(t, svc)

	_, pair, err := svc.Login(context.Background(), "alice", "sup3rsecret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	newPair, uid, err := svc.Refresh(context.Background(), pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if uid != u.ID {
		t.Fatalf("refreshed uid = %q, want %q", uid, u.ID)
	}
	if newPair.AccessToken == "" {
		t.Fatal("expected fresh access token")
	}

	if _, _, err := svc.Refresh(context.Background(), "garbage"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("bad refresh err = %v, want ErrInvalidCredentials", err)
	}
}

func TestVerifyEmail(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	u := registerAlice(t, svc)
	token := *u.EmailState.VerificationToken

	verified, err := svc.VerifyEmail(context.Background(), token)
	if err != nil {
		t.Fatalf("VerifyEmail: %v", err)
	}
	if !verified.EmailState.Verified() {
		t.Fatal("expected verified email state")
	}
	if verified.EmailState.VerificationToken != nil {
		t.Fatal("token must be cleared after use")
	}

	// single-use token
	if _, err := svc.VerifyEmail(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("reuse err = %v, want ErrInvalidToken", err)
	}
}

func TestRequestEmailVerificationAlreadyVerified(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	u := registerAlice(t, svc)

	if _, err := svc.VerifyEmail(context.Background(), *u.EmailState.VerificationToken); err != nil {
		t.Fatalf("VerifyEmail: %v", err)
	}
	already, err := svc.RequestEmailVerification(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("RequestEmailVerification: %v", err)
	}
	if !already {
		t.Fatal("expected already-verified result")
	}
}

func TestRequestPasswordResetUnknownEmail(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	registerAlice(t, svc)

	// silent on unknown addresses
	if err := svc.RequestPasswordReset(context.Background(), "nobody@example.com"); err != nil {
		t.Fatalf("RequestPasswordReset: %v", err)
	}
	for _, u := range fs.users {
		if u.PasswordReset != nil && u.PasswordReset.ResetToken != nil {
			t.Fatal("no token should have been issued")
		}
	}
}

func TestResetPassword(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	u := registerAlice(t, svc)

	if err := svc.RequestPasswordReset(context.Background(), "alice@example.com"); err != nil {
		t.Fatalf("RequestPasswordReset: %v", err)
	}
	stored := fs.users[u.ID]
	if stored.PasswordReset == nil || stored.PasswordReset.ResetToken == nil {
		t.Fatal("expected issued reset token")
	}
	token := *stored.PasswordReset.ResetToken

	if err := svc.ResetPassword(context.Background(), token, "brandnewpass"); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	if _, err := svc.Authenticate(context.Background(), "alice", "brandnewpass"); err != nil {
		t.Fatalf("authenticate with new password: %v", err)
	}
	if _, err := svc.Authenticate(context.Background(), "alice", "sup3rsecret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password err = %v, want ErrInvalidCredentials", err)
	}
	if fs.users[u.ID].PasswordReset.ResetToken != nil {
		t.Fatal("reset token must be cleared after use")
	}

	if err := svc.ResetPassword(context.Background(), token, "anotherpass1"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("reuse err = %v, want ErrInvalidToken", err)
	}
}

func TestResetPasswordExpiredToken(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	u := registerAlice(t, svc)

	if err := svc.RequestPasswordReset(context.Background(), "alice@example.com"); err != nil {
		t.Fatalf("RequestPasswordReset: %v", err)
	}
	token := *fs.users[u.ID].PasswordReset.ResetToken

	base := svc.Now()
	svc.Now = func() time.Time { return base.Add(31 * time.Minute) }

	if err := svc.ResetPassword(context.Background(), token, "brandnewpass"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired token err = %v, want ErrInvalidToken", err)
	}
}

func TestAssignRoleSwap(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	u := registerAlice(t, svc)

	promoted, err := svc.AssignRole(context.Background(), u.ID, "admin")
	if err != nil {
		t.Fatalf("AssignRole: %v", err)
	}
	if got := promoted.RoleNames(); len(got) != 1 || got[0] != "ADMIN" {
		t.Fatalf("roles after swap = %v, want [ADMIN]", got)
	}
	if !promoted.HasRole("Admin") {
		t.Fatal("HasRole should match case-insensitively")
	}

	if _, err := svc.AssignRole(context.Background(), u.ID, "OVERLORD"); !errors.Is(err, ErrRoleNotFound) {
		t.Fatalf("unknown role err = %v, want ErrRoleNotFound", err)
	}
	if _, err := svc.AssignRole(context.Background(), "missing-user", "ADMIN"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("unknown user err = %v, want ErrUserNotFound", err)
	}
}

func TestUsersInRole(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	u := registerAlice(t, svc)

	users, count, err := svc.UsersInRole(context.Background(), "USER")
	if err != nil {
		t.Fatalf("UsersInRole: %v", err)
	}
	if count != 1 || len(users) != 1 || users[0].ID != u.ID {
		t.Fatalf("UsersInRole = %d users, count %d", len(users), count)
	}

	if _, _, err := svc.UsersInRole(context.Background(), "OVERLORD"); !errors.Is(err, ErrRoleNotFound) {
		t.Fatalf("unknown role err = %v, want ErrRoleNotFound", err)
	}
}

func TestUpdateProfile(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	u := registerAlice(t, svc)

	updated, err := svc.UpdateProfile(context.Background(), u.ID, UpdateProfileInput{
		Name: "Alicia",
		Bio:  "hello",
	})
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if updated.Name != "Alicia" {
		t.Fatalf("Name = %q, want Alicia", updated.Name)
	}
	if updated.Surname != "Smith" {
		t.Fatalf("empty input must not clear Surname, got %q", updated.Surname)
	}
	if updated.Profile == nil || updated.Profile.Bio != "hello" {
		t.Fatal("expected bio on profile")
	}
}

func TestDeleteUser(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	u := registerAlice(t, svc)

	if err := svc.DeleteUser(context.Background(), u.ID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if _, err := svc.GetProfile(context.Background(), u.ID); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("after delete err = %v, want ErrUserNotFound", err)
	}
	if err := svc.DeleteUser(context.Background(), u.ID); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("double delete err = %v, want ErrUserNotFound", err)
	}

	names, err := svc.RoleNames(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("RoleNames: %v", err)
	}
	if len(names) != 0 {
		t.Fatalf("memberships must be gone, got %v", names)
	}
}
