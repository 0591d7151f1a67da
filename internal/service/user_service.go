package service

import (
	"context"
	"doc-organizer-go/internal/model"
	"doc-organizer-go/internal/repository"
	"doc-organizer-go/pkg/hash"
	"doc-organizer-go/pkg/log"
	"doc-organizer-go/pkg/token"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"gorm.io/gorm"
)

var (
	ErrUserExists         = errors.New("用户名或邮箱已存在")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidUserInput   = errors.New("invalid user input")
)

const minPasswordLength = 6

// AccountPurger 清理某个用户名下的全部数据，由 DocumentService 实现。
type AccountPurger interface {
	PurgeUser(ctx context.Context, userID uint) error
}

// UserService 接口定义了所有与用户相关的业务操作。
type UserService interface {
	Register(username, email, password string) (*model.User, error)
	Login(username, password string) (accessToken, refreshToken string, err error)
	GetProfile(username string) (*model.User, error)
	Logout(ctx context.Context, tokenString string) error
	RefreshToken(refreshTokenString string) (newAccessToken, newRefreshToken string, err error)
	DeleteAccount(ctx context.Context, user *model.User) error
}

// userService 是 UserService 接口的实现。
type userService struct {
	userRepo   repository.UserRepository
	blacklist  repository.TokenBlacklist
	searchLogs repository.SearchLogRepository
	purger     AccountPurger
	jwtManager *token.JWTManager
}

// NewUserService 创建一个新的 UserService 实例。
func NewUserService(
	userRepo repository.UserRepository,
	blacklist repository.TokenBlacklist,
	searchLogs repository.SearchLogRepository,
	purger AccountPurger,
	jwtManager *token.JWTManager,
) UserService {
	return &userService{
		userRepo:   userRepo,
		blacklist:  blacklist,
		searchLogs: searchLogs,
		purger:     purger,
		jwtManager: jwtManager,
	}
}

// Register 处理用户注册的业务逻辑。第一个注册的用户成为管理员。
func (s *userService) Register(username, email, password string) (*model.User, error) {
	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))
	if len(username) < 3 || len(username) > 64 {
		return nil, fmt.Errorf("%w: 用户名长度需在 3 到 64 之间", ErrInvalidUserInput)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: 邮箱格式不正确", ErrInvalidUserInput)
	}
	if len(password) < minPasswordLength {
		return nil, fmt.Errorf("%w: 密码长度至少为 %d", ErrInvalidUserInput, minPasswordLength)
	}

	// 1. 检查用户名和邮箱是否已存在
	if _, err := s.userRepo.FindByUsername(username); err == nil {
		return nil, ErrUserExists
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if _, err := s.userRepo.FindByEmail(email); err == nil {
		return nil, ErrUserExists
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	// 2. 对密码进行哈希处理
	hashedPassword, err := hash.HashPassword(password)
	if err != nil {
		return nil, err
	}

	role := model.RoleUser
	if count, err := s.userRepo.Count(); err == nil && count == 0 {
		role = model.RoleAdmin
	}

	newUser := &model.User{
		Username: username,
		Email:    email,
		Password: hashedPassword,
		Role:     role,
	}
	if err := s.userRepo.Create(newUser); err != nil {
		return nil, err
	}
	log.Infof("[UserService] 新用户注册成功, username: %s, role: %s", username, role)
	return newUser, nil
}

// Login 处理用户登录的业务逻辑，用户名也可以是邮箱。
func (s *userService) Login(username, password string) (accessToken, refreshToken string, err error) {
	// 1. 查找用户
	user, err := s.userRepo.FindByUsername(username)
	if errors.Is(err, gorm.ErrRecordNotFound) && strings.Contains(username, "@") {
		user, err = s.userRepo.FindByEmail(strings.ToLower(username))
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", "", ErrInvalidCredentials
		}
		return "", "", err
	}

	// 2. 验证密码
	if !hash.CheckPasswordHash(password, user.Password) {
		return "", "", ErrInvalidCredentials
	}

	// 3. 生成 access token 和 refresh token
	return s.issueTokens(user)
}

func (s *userService) issueTokens(user *model.User) (string, string, error) {
	accessToken, err := s.jwtManager.GenerateToken(user.ID, user.Username, user.Role)
	if err != nil {
		return "", "", err
	}
	refreshToken, err := s.jwtManager.GenerateRefreshToken(user.ID, user.Username, user.Role)
	if err != nil {
		return "", "", err
	}
	return accessToken, refreshToken, nil
}

// GetProfile 根据用户名获取用户详细信息。
func (s *userService) GetProfile(username string) (*model.User, error) {
	return s.userRepo.FindByUsername(username)
}

// Logout 将 token 的 jti 加入黑名单，过期时间为 token 的剩余有效期。
func (s *userService) Logout(ctx context.Context, tokenString string) error {
	claims, err := s.jwtManager.VerifyToken(tokenString)
	if err != nil {
		return err
	}
	expiration := time.Until(claims.ExpiresAt.Time)
	if expiration <= 0 {
		return nil
	}
	return s.blacklist.Add(ctx, claims.ID, expiration)
}

// RefreshToken 使用 refresh token 换取新的一对 token，旧的 refresh token 作废。
func (s *userService) RefreshToken(refreshTokenString string) (string, string, error) {
	claims, err := s.jwtManager.VerifyTyped(refreshTokenString, token.TypeRefresh)
	if err != nil {
		return "", "", ErrInvalidCredentials
	}
	ctx := context.Background()
	if revoked, err := s.blacklist.Contains(ctx, claims.ID); err != nil {
		return "", "", err
	} else if revoked {
		return "", "", ErrInvalidCredentials
	}

	user, err := s.userRepo.FindByID(claims.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", "", ErrInvalidCredentials
		}
		return "", "", err
	}
	if ttl := time.Until(claims.ExpiresAt.Time); ttl > 0 {
		if err := s.blacklist.Add(ctx, claims.ID, ttl); err != nil {
			log.Warnf("[UserService] 作废旧 refresh token 失败: %v", err)
		}
	}
	return s.issueTokens(user)
}

// DeleteAccount 删除用户的文档（对象、索引与记录）、搜索历史和账户本身。
func (s *userService) DeleteAccount(ctx context.Context, user *model.User) error {
	if s.purger != nil {
		if err := s.purger.PurgeUser(ctx, user.ID); err != nil {
			return fmt.Errorf("删除用户文档失败: %w", err)
		}
	}
	if s.searchLogs != nil {
		if _, err := s.searchLogs.DeleteByUser(ctx, user.ID); err != nil {
			return fmt.Errorf("删除搜索历史失败: %w", err)
		}
	}
	if err := s.userRepo.Delete(user.ID); err != nil {
		return fmt.Errorf("删除用户失败: %w", err)
	}
	log.Infof("[UserService] 用户 %s (id=%d) 已注销", user.Username, user.ID)
	return nil
}
