package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Arham-Tahir64/chitty/internal/domain"
	"github.com/Arham-Tahir64/chitty/internal/repository"
	"github.com/golang-jwt/jwt/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// AuthService 负责用户注册、登录和令牌校验。
type AuthService struct {
	userRepo  repository.UserRepository
	jwtSecret []byte
	jwtExpiry time.Duration
}

// NewAuthService 创建 AuthService 实例。
// jwtExpiryHours 不合法时回退到 24 小时。
func NewAuthService(userRepo repository.UserRepository, jwtSecretKey string, jwtExpiryHours int) (*AuthService, error) {
	if userRepo == nil {
		panic("UserRepository cannot be nil for AuthService")
	}
	if jwtSecretKey == "" {
		return nil, fmt.Errorf("JWT secret key cannot be empty")
	}
	if jwtExpiryHours <= 0 {
		jwtExpiryHours = 24
	}
	return &AuthService{
		userRepo:  userRepo,
		jwtSecret: []byte(jwtSecretKey),
		jwtExpiry: time.Duration(jwtExpiryHours) * time.Hour,
	}, nil
}

// Register 处理用户注册。
func (s *AuthService) Register(ctx context.Context, username, password string) (*domain.User, error) {
	logCtx := logrus.WithField("username", username)

	if username == "" || password == "" {
		return nil, ErrInvalidInput
	}

	hashed, err := hashPassword(password)
	if err != nil {
		logCtx.WithError(err).Error("Failed to hash password during registration")
		return nil, ErrInternalServer
	}

	user := &domain.User{
		Username: username,
		Password: hashed,
	}
	if err := s.userRepo.Save(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			logCtx.Warn("Registration failed: username already exists")
			return nil, ErrRegistrationFailed
		}
		logCtx.WithError(err).Error("Database error during user creation")
		return nil, ErrInternalServer
	}

	logCtx.WithField("user_id", user.ID).Info("User registered successfully")
	user.Password = "" // 清除哈希再返回
	return user, nil
}

// Login 验证用户名密码并签发 JWT。
// 用户不存在和密码错误对客户端统一表现为认证失败。
func (s *AuthService) Login(ctx context.Context, username, password string) (string, *domain.User, error) {
	logCtx := logrus.WithField("username", username)

	user, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			logCtx.Warn("Login attempt failed: user not found")
		} else {
			logCtx.WithError(err).Warn("Login attempt failed: error finding user")
		}
		return "", nil, ErrAuthenticationFailed
	}
	if user == nil {
		return "", nil, ErrAuthenticationFailed
	}

	if !checkPassword(password, user.Password) {
		logCtx.Warn("Login attempt failed: invalid password")
		return "", nil, ErrAuthenticationFailed
	}

	token, err := s.generateJWT(user.ID, user.Username)
	if err != nil {
		logCtx.WithError(err).Error("Failed to generate JWT token during login")
		return "", nil, ErrInternalServer
	}

	logCtx.WithField("user_id", user.ID).Info("User logged in successfully")
	user.Password = ""
	return token, user, nil
}

// VerifyToken 校验令牌并还原连接身份。
// WebSocket 握手和 HTTP 中间件共用这一个入口。
func (s *AuthService) VerifyToken(tokenString string) (domain.Identity, error) {
	if tokenString == "" {
		return domain.Identity{}, ErrInvalidToken
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return domain.Identity{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return domain.Identity{}, ErrInvalidToken
	}
	userID, ok := claims["user_id"].(float64)
	if !ok || userID <= 0 {
		return domain.Identity{}, ErrInvalidToken
	}
	username, _ := claims["username"].(string)

	return domain.Identity{ID: uint(userID), Username: username}, nil
}

// ResolveIdentity 校验令牌并解析出完整的连接身份。
// 旧版令牌没有 username 声明，这里回查数据库补全，
// 同时顺带确认用户仍然存在，而不是只信任令牌内容。
func (s *AuthService) ResolveIdentity(ctx context.Context, tokenString string) (domain.Identity, error) {
	identity, err := s.VerifyToken(tokenString)
	if err != nil {
		return domain.Identity{}, err
	}
	if identity.Username != "" {
		return identity, nil
	}

	user, err := s.userRepo.FindByID(ctx, identity.ID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			logrus.WithField("user_id", identity.ID).Warn("Token references a user that no longer exists")
			return domain.Identity{}, ErrInvalidToken
		}
		logrus.WithError(err).WithField("user_id", identity.ID).Error("Database error while resolving identity")
		return domain.Identity{}, ErrInternalServer
	}
	if user == nil {
		return domain.Identity{}, ErrInvalidToken
	}

	identity.Username = user.Username
	return identity, nil
}

// --- 私有辅助函数 ---

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to generate hash from password: %w", err)
	}
	return string(bytes), nil
}

func checkPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func (s *AuthService) generateJWT(userID uint, username string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  userID,
		"username": username,
		"exp":      time.Now().Add(s.jwtExpiry).Unix(),
		"iat":      time.Now().Unix(),
	})
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}
