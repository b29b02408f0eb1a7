package auth

import (
	"context"
	"errors"
	"time"

	"guarantee-controlplane/pkg/rediskey"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

// UserProfile is the part of user_profiles read for authorization.
type UserProfile struct {
	ID   string `gorm:"column:id;primaryKey"`
	Role string `gorm:"column:role"`
}

func (UserProfile) TableName() string { return "user_profiles" }

type RoleStore interface {
	// Role returns "" when the user has no profile.
	Role(ctx context.Context, userID string) (string, error)
}

type profileRoles struct {
	db    *gorm.DB
	rdb   *redis.Client
	ttl   time.Duration
	group singleflight.Group
}

// NewRoleStore reads roles from user_profiles. rdb may be nil to disable caching.
func NewRoleStore(db *gorm.DB, rdb *redis.Client) RoleStore {
	return &profileRoles{db: db, rdb: rdb, ttl: time.Minute}
}

func (s *profileRoles) Role(ctx context.Context, userID string) (string, error) {
	key := rediskey.BuildRoleKey(userID)

	if s.rdb != nil {
		role, err := s.rdb.Get(ctx, key).Result()
		if err == nil {
			return role, nil
		}
		if !errors.Is(err, redis.Nil) {
			zap.L().Warn("role cache unavailable", zap.Error(err))
		}
	}

	v, err, _ := s.group.Do(userID, func() (any, error) {
		var profile UserProfile
		res := s.db.WithContext(ctx).
			Select("id", "role").
			Where("id = ?", userID).
			Limit(1).
			Find(&profile)
		if res.Error != nil {
			return "", res.Error
		}

		if s.rdb != nil {
			if err := s.rdb.Set(ctx, key, profile.Role, s.ttl).Err(); err != nil {
				zap.L().Warn("failed to cache role", zap.Error(err))
			}
		}

		return profile.Role, nil
	})
	if err != nil {
		return "", err
	}

	return v.(string), nil
}
