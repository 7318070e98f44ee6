package application

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/OlivMer765/auth-service/config"
	"github.com/OlivMer765/auth-service/internal/domain/entity"
	repo "github.com/OlivMer765/auth-service/internal/domain/repository"
	"github.com/OlivMer765/auth-service/pkg/helpers"
	"github.com/OlivMer765/auth-service/pkg/mailer"
	mailtpl "github.com/OlivMer765/auth-service/pkg/mailer/templates"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDisabled    = errors.New("account disabled")
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrUsernameTaken      = errors.New("username already registered")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrRoleNotFound       = errors.New("role not found")
)

// Service composes the user and role stores with the surrounding
// infrastructure: sessions in Redis, email jobs on RabbitMQ, search in
// Elasticsearch, avatars in GCS.
type Service struct {
	Users        repo.UserRepository
	Roles        repo.RoleRepository
	JWT          *helpers.JWTManager
	Redis        *redis.Client
	Pub          *helpers.RabbitPublisher
	GCS          *storage.Client
	GCSBucket    string
	ES           *elasticsearch.Client
	ESUsersIndex string
	Logger       *logrus.Logger
	Cfg          *config.Config

	// Injected capabilities, overridable in tests.
	NewID    func() (string, error)
	NewToken func(n int) (string, error)
	Now      func() time.Time
}

func NewService(users repo.UserRepository, roles repo.RoleRepository, jwt *helpers.JWTManager, rdb *redis.Client, pub *helpers.RabbitPublisher, gcs *storage.Client, gcsBucket string, es *elasticsearch.Client, esUsersIndex string, logger *logrus.Logger, cfg *config.Config) *Service {
	return &Service{
		Users:        users,
		Roles:        roles,
		JWT:          jwt,
		Redis:        rdb,
		Pub:          pub,
		GCS:          gcs,
		GCSBucket:    gcsBucket,
		ES:           es,
		ESUsersIndex: esUsersIndex,
		Logger:       logger,
		Cfg:          cfg,
		NewID:        helpers.NewID,
		NewToken:     helpers.NewToken,
		Now:          func() time.Time { return time.Now().UTC() },
	}
}

func sessionKey(userID string) string {
	return "user:session:" + userID
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

type TokenPair struct {
	AccessToken        string
	AccessTokenExpiry  time.Time
	RefreshToken       string
	RefreshTokenExpiry time.Time
}

type RegisterInput struct {
	Name     string
	Surname  string
	Username string
	Email    string
	Password string
}

// Register creates a new account: uniqueness pre-checks, bcrypt hash, the
// aggregate with a pending verification token, the default role, and the
// verification email on the queue.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*entity.User, error) {
	if taken, err := s.Users.ExistsByEmail(ctx, in.Email); err != nil {
		return nil, err
	} else if taken {
		return nil, ErrEmailTaken
	}
	if taken, err := s.Users.ExistsByUsername(ctx, in.Username); err != nil {
		return nil, err
	} else if taken {
		return nil, ErrUsernameTaken
	}

	hash, err := helpers.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	id, err := s.NewID()
	if err != nil {
		return nil, err
	}
	verifyToken, err := s.NewToken(32)
	if err != nil {
		return nil, err
	}

	u := &entity.User{
		ID:       id,
		Name:     in.Name,
		Surname:  in.Surname,
		Username: in.Username,
		Email:    in.Email,
		Password: hash,
		Status:   true,
		Profile:  &entity.UserProfile{UserID: id},
		EmailState: &entity.UserEmail{
			UserID:            id,
			VerificationToken: &verifyToken,
		},
		PasswordReset: &entity.UserPasswordReset{UserID: id},
	}

	created, err := s.Users.Create(ctx, u)
	if err != nil {
		// The pre-checks race with concurrent registrations; the unique
		// indexes are authoritative.
		if errors.Is(err, repo.ErrDuplicate) {
			if strings.Contains(err.Error(), "username") {
				return nil, ErrUsernameTaken
			}
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	if role, rErr := s.Roles.GetByName(ctx, s.Cfg.DefaultRoleName); rErr == nil && role != nil {
		if aErr := s.Users.UpdateUserRole(ctx, created.ID, role.ID); aErr != nil {
			s.logWarn("assign default role failed", aErr, logrus.Fields{"user_id": created.ID})
		} else if reread, gErr := s.Users.GetByID(ctx, created.ID); gErr == nil {
			created = reread
		}
	}

	s.enqueueEmail(ctx, created.Email, mailtpl.VerifyEmail, map[string]any{
		"Name":        created.Name,
		"VerifyURL":   s.Cfg.VerifyEmailURL + "?token=" + verifyToken,
		"ExpiresIn":   s.Cfg.VerifyTokenTTL.String(),
		"CompanyName": s.Cfg.CompanyName,
	})
	s.enqueueEmail(ctx, created.Email, mailtpl.Welcome, map[string]any{
		"Name":        created.Name,
		"Username":    created.Username,
		"CompanyName": s.Cfg.CompanyName,
	})
	_ = s.indexUser(ctx, created)
	return created, nil
}

// Authenticate resolves login (email or username, case-insensitive) and checks
// the password. Misses and bad passwords are indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, login, password string) (*entity.User, error) {
	var (
		u   *entity.User
		err error
	)
	if strings.Contains(login, "@") {
		u, err = s.Users.GetByEmail(ctx, login)
	} else {
		u, err = s.Users.GetByUsername(ctx, login)
	}
	if err != nil {
		return nil, err
	}
	if u == nil || !helpers.CheckPassword(u.Password, password) {
		return nil, ErrInvalidCredentials
	}
	if !u.Status {
		return nil, ErrAccountDisabled
	}
	return u, nil
}

// IssueTokens generates the access/refresh pair and records the session in
// Redis.
func (s *Service) IssueTokens(ctx context.Context, u *entity.User) (TokenPair, error) {
	sid := uuid.NewString()
	access, aexp, err := s.JWT.GenerateAccessToken(u.ID, sid)
	if err != nil {
		s.logWarn("generate access token failed", err, logrus.Fields{"user_id": u.ID})
		return TokenPair{}, err
	}
	refresh, rexp, err := s.JWT.GenerateRefreshToken(u.ID, sid)
	if err != nil {
		s.logWarn("generate refresh token failed", err, logrus.Fields{"user_id": u.ID})
		return TokenPair{}, err
	}

	if s.Redis != nil {
		fields := map[string]any{
			"user_id":    u.ID,
			"email":      u.Email,
			"username":   u.Username,
			"name":       u.Name,
			"sid":        sid,
			"created_at": nowRFC3339(),
		}
		key := sessionKey(u.ID)
		pipe := s.Redis.Pipeline()
		pipe.HSet(ctx, key, fields)
		pipe.Expire(ctx, key, 24*time.Hour)
		if _, rErr := pipe.Exec(ctx); rErr != nil {
			s.logWarn("redis session write failed", rErr, logrus.Fields{"key": key})
		}
	}
	return TokenPair{AccessToken: access, AccessTokenExpiry: aexp, RefreshToken: refresh, RefreshTokenExpiry: rexp}, nil
}

// Login authenticates and issues tokens in one step.
func (s *Service) Login(ctx context.Context, login, password string) (*entity.User, TokenPair, error) {
	u, err := s.Authenticate(ctx, login, password)
	if err != nil {
		return nil, TokenPair{}, err
	}
	pair, err := s.IssueTokens(ctx, u)
	if err != nil {
		return nil, TokenPair{}, err
	}
	return u, pair, nil
}

// Refresh rotates the session and token pair from a valid refresh token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, string, error) {
	claims, err := s.JWT.ParseRefreshToken(refreshToken)
	if err != nil {
		return TokenPair{}, "", ErrInvalidCredentials
	}
	u, err := s.Users.GetByID(ctx, claims.UserID)
	if err != nil {
		return TokenPair{}, "", ErrInvalidCredentials
	}
	if s.Redis != nil {
		data, rErr := s.Redis.HGetAll(ctx, sessionKey(u.ID)).Result()
		if rErr != nil || len(data) == 0 || data["sid"] != claims.SessionID {
			return TokenPair{}, "", ErrInvalidCredentials
		}
	}
	pair, err := s.IssueTokens(ctx, u)
	if err != nil {
		return TokenPair{}, "", err
	}
	return pair, u.ID, nil
}

// Logout drops the Redis session.
func (s *Service) Logout(ctx context.Context, userID string) {
	if s.Redis != nil && userID != "" {
		_ = s.Redis.Del(ctx, sessionKey(userID)).Err()
	}
}

// GetProfile returns the hydrated aggregate for the user.
func (s *Service) GetProfile(ctx context.Context, userID string) (*entity.User, error) {
	u, err := s.Users.GetByID(ctx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return u, err
}

type UpdateProfileInput struct {
	Name      string
	Surname   string
	Bio       string
	AvatarURL string
}

// UpdateProfile applies the non-empty fields of in and persists the aggregate.
func (s *Service) UpdateProfile(ctx context.Context, userID string, in UpdateProfileInput) (*entity.User, error) {
	u, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if in.Name != "" {
		u.Name = in.Name
	}
	if in.Surname != "" {
		u.Surname = in.Surname
	}
	if u.Profile == nil {
		u.Profile = &entity.UserProfile{UserID: u.ID}
	}
	if in.Bio != "" {
		u.Profile.Bio = in.Bio
	}
	if in.AvatarURL != "" {
		u.Profile.AvatarURL = in.AvatarURL
	}
	updated, err := s.Users.Update(ctx, u)
	if err != nil {
		return nil, err
	}

	if s.Redis != nil {
		key := sessionKey(updated.ID)
		pipe := s.Redis.Pipeline()
		pipe.HSet(ctx, key, map[string]any{"name": updated.Name, "updated_at": nowRFC3339()})
		if ttl, tErr := s.Redis.TTL(ctx, key).Result(); tErr == nil && ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		if _, pErr := pipe.Exec(ctx); pErr != nil {
			s.logWarn("redis session refresh failed", pErr, logrus.Fields{"key": key})
		}
	}
	_ = s.indexUser(ctx, updated)
	return updated, nil
}

// UploadAvatar streams an avatar to GCS and stores the public URL on the
// profile.
func (s *Service) UploadAvatar(ctx context.Context, userID string, r io.Reader, filename, contentType string) (string, error) {
	if s.GCS == nil || s.GCSBucket == "" {
		return "", errors.New("gcs not configured")
	}
	u, err := s.GetProfile(ctx, userID)
	if err != nil {
		return "", err
	}
	ext := strings.ToLower(filepath.Ext(filename))
	objectPath := filepath.ToSlash(filepath.Join("avatars", userID, uuid.NewString()+ext))
	url, err := helpers.UploadObject(ctx, s.GCS, s.GCSBucket, objectPath, contentType, r)
	if err != nil {
		return "", err
	}
	if u.Profile == nil {
		u.Profile = &entity.UserProfile{UserID: u.ID}
	}
	u.Profile.AvatarURL = url
	if _, err := s.Users.Update(ctx, u); err != nil {
		return "", err
	}
	return url, nil
}

// RequestEmailVerification (re-)issues a verification token for the user and
// enqueues the verification email. Returns true when the address was already
// verified and nothing was issued.
func (s *Service) RequestEmailVerification(ctx context.Context, userID string) (bool, error) {
	u, err := s.GetProfile(ctx, userID)
	if err != nil {
		return false, err
	}
	if u.EmailState == nil {
		u.EmailState = &entity.UserEmail{UserID: u.ID}
	}
	if u.EmailState.Verified() {
		return true, nil
	}
	token, err := s.NewToken(32)
	if err != nil {
		return false, err
	}
	u.EmailState.VerificationToken = &token
	if _, err := s.Users.Update(ctx, u); err != nil {
		return false, err
	}
	s.enqueueEmail(ctx, u.Email, mailtpl.VerifyEmail, map[string]any{
		"Name":        u.Name,
		"VerifyURL":   s.Cfg.VerifyEmailURL + "?token=" + token,
		"ExpiresIn":   s.Cfg.VerifyTokenTTL.String(),
		"CompanyName": s.Cfg.CompanyName,
	})
	return false, nil
}

// VerifyEmail confirms the address behind a verification token and clears the
// token, making it single-use.
func (s *Service) VerifyEmail(ctx context.Context, token string) (*entity.User, error) {
	u, err := s.Users.GetByEmailVerificationToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrInvalidToken
	}
	now := s.Now()
	u.EmailState.VerifiedAt = &now
	u.EmailState.VerificationToken = nil
	return s.Users.Update(ctx, u)
}

// RequestPasswordReset issues a reset token for the address, if registered.
// Unknown addresses are silently ignored so the endpoint cannot be used for
// account enumeration.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	u, err := s.Users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if u == nil {
		return nil
	}
	token, err := s.NewToken(32)
	if err != nil {
		return err
	}
	now := s.Now()
	if u.PasswordReset == nil {
		u.PasswordReset = &entity.UserPasswordReset{UserID: u.ID}
	}
	u.PasswordReset.ResetToken = &token
	u.PasswordReset.RequestedAt = &now
	if _, err := s.Users.Update(ctx, u); err != nil {
		return err
	}
	s.enqueueEmail(ctx, u.Email, mailtpl.ForgotPassword, map[string]any{
		"Name":        u.Name,
		"ResetURL":    s.Cfg.ResetPasswordURL + "?token=" + token,
		"ExpiresIn":   s.Cfg.ResetTokenTTL.String(),
		"CompanyName": s.Cfg.CompanyName,
	})
	return nil
}

// ResetPassword sets a new password for the user behind a reset token. The
// store only matches tokens exactly; the time limit is enforced here from
// RequestedAt.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	u, err := s.Users.GetByPasswordResetToken(ctx, token)
	if err != nil {
		return err
	}
	if u == nil {
		return ErrInvalidToken
	}
	if u.PasswordReset.RequestedAt != nil &&
		s.Now().Sub(*u.PasswordReset.RequestedAt) > s.Cfg.ResetTokenTTL {
		return ErrInvalidToken
	}
	hash, err := helpers.HashPassword(newPassword)
	if err != nil {
		return err
	}
	u.Password = hash
	u.PasswordReset.ResetToken = nil
	u.PasswordReset.RequestedAt = nil
	if _, err := s.Users.Update(ctx, u); err != nil {
		return err
	}
	s.Logout(ctx, u.ID)
	return nil
}

// AssignRole swaps the user's membership to the named role.
func (s *Service) AssignRole(ctx context.Context, userID, roleName string) (*entity.User, error) {
	role, err := s.Roles.GetByName(ctx, roleName)
	if err != nil {
		return nil, err
	}
	if role == nil {
		return nil, ErrRoleNotFound
	}
	if _, err := s.GetProfile(ctx, userID); err != nil {
		return nil, err
	}
	if err := s.Users.UpdateUserRole(ctx, userID, role.ID); err != nil {
		return nil, err
	}
	return s.GetProfile(ctx, userID)
}

// RoleNames returns the role names currently held by the user.
func (s *Service) RoleNames(ctx context.Context, userID string) ([]string, error) {
	return s.Roles.GetUserRoleNames(ctx, userID)
}

// UsersInRole lists the hydrated members of the named role with the member
// count.
func (s *Service) UsersInRole(ctx context.Context, roleName string) ([]*entity.User, int64, error) {
	role, err := s.Roles.GetByName(ctx, roleName)
	if err != nil {
		return nil, 0, err
	}
	if role == nil {
		return nil, 0, ErrRoleNotFound
	}
	users, err := s.Roles.GetUsersByRole(ctx, role.Name)
	if err != nil {
		return nil, 0, err
	}
	count, err := s.Roles.CountUsersInRole(ctx, role.ID)
	if err != nil {
		return nil, 0, err
	}
	return users, count, nil
}

// DeleteUser removes the account and its owned rows, the session and the
// search document.
func (s *Service) DeleteUser(ctx context.Context, userID string) error {
	if err := s.Users.Delete(ctx, userID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	s.Logout(ctx, userID)
	s.deleteUserDoc(ctx, userID)
	return nil
}

func (s *Service) enqueueEmail(ctx context.Context, to, template string, data map[string]any) {
	if s.Pub == nil || s.Cfg == nil || !s.Cfg.MailSendEnabled {
		return
	}
	job := mailer.EmailJob{To: to, Template: template, Data: data}
	if err := s.Pub.PublishJSON(ctx, job); err != nil {
		s.logWarn("enqueue email failed", err, logrus.Fields{"to": to, "template": template})
	}
}

func (s *Service) indexUser(ctx context.Context, u *entity.User) error {
	if s.ES == nil || s.ESUsersIndex == "" {
		return nil
	}
	doc := map[string]any{
		"id":         u.ID,
		"email":      u.Email,
		"username":   u.Username,
		"name":       u.Name,
		"surname":    u.Surname,
		"status":     u.Status,
		"roles":      u.RoleNames(),
		"created_at": u.CreatedAt.Format(time.RFC3339Nano),
		"updated_at": u.UpdatedAt.Format(time.RFC3339Nano),
	}
	b, _ := json.Marshal(doc)
	req := esapi.IndexRequest{Index: s.ESUsersIndex, DocumentID: u.ID, Body: strings.NewReader(string(b)), Refresh: "false"}
	c, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := req.Do(c, s.ES)
	if err != nil {
		s.logWarn("es index failed", err, logrus.Fields{"user_id": u.ID})
		return err
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() {
		s.logWarn("es index response error", nil, logrus.Fields{"status": res.Status(), "user_id": u.ID})
	}
	return nil
}

func (s *Service) deleteUserDoc(ctx context.Context, userID string) {
	if s.ES == nil || s.ESUsersIndex == "" {
		return
	}
	req := esapi.DeleteRequest{Index: s.ESUsersIndex, DocumentID: userID}
	c, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if res, err := req.Do(c, s.ES); err == nil {
		_ = res.Body.Close()
	}
}

// SearchUsers runs a multi_match query over the indexed identity fields.
func (s *Service) SearchUsers(ctx context.Context, q string, size int) ([]map[string]any, error) {
	if s.ES == nil || s.ESUsersIndex == "" {
		return []map[string]any{}, nil
	}
	if size <= 0 || size > 50 {
		size = 10
	}
	query := map[string]any{
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":  q,
				"fields": []string{"email^2", "username^2", "name", "surname"},
			},
		},
		"size": size,
	}
	b, _ := json.Marshal(query)

	c, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := s.ES.Search(
		s.ES.Search.WithContext(c),
		s.ES.Search.WithIndex(s.ESUsersIndex),
		s.ES.Search.WithBody(strings.NewReader(string(b))),
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	var parsed struct {
		Hits struct {
			Hits []struct {
				ID     string         `json:"_id"`
				Source map[string]any `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		out = append(out, h.Source)
	}
	return out, nil
}

func (s *Service) logWarn(msg string, err error, fields logrus.Fields) {
	if s.Logger == nil {
		return
	}
	e := s.Logger.WithFields(fields)
	if err != nil {
		e = e.WithError(err)
	}
	e.Warn(msg)
}
