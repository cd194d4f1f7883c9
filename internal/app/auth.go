// internal/app/auth.go
package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shrimpsizemoose/trekker/logger"
)

const (
	RolePlayer = "player"
	RoleJudge  = "judge"
	RoleAdmin  = "admin"

	timeFormat  = "2006-01-02 15:04:05"
	tokenPrefix = "sk-kngsbrg-"
)

// Capability is what the token resolved to: which team the caller acts
// for and what they may do. Resolution happens before any core operation
// is invoked; the core itself never sees tokens.
type Capability struct {
	TeamID int64
	Role   string
}

func (c Capability) CanPlay() bool {
	return c.Role == RolePlayer
}

func (c Capability) CanAdminister() bool {
	return c.Role == RoleAdmin
}

type Auth struct {
	enabled     bool
	redis       *redis.Client
	keyTemplate string
	tokenHeader string
}

func NewAuth(config *Config, client *redis.Client) (*Auth, error) {
	if !config.Server.EnableAuth {
		return &Auth{enabled: false}, nil
	}

	if client == nil {
		return nil, fmt.Errorf("auth is enabled but no redis client is configured")
	}

	return &Auth{
		enabled:     true,
		redis:       client,
		keyTemplate: config.Auth.TokenKeyTemplate,
		tokenHeader: config.Auth.TokenHeader,
	}, nil
}

func (a *Auth) TokenHeader() string {
	return a.tokenHeader
}

func (a *Auth) key(teamID int64) string {
	return strings.NewReplacer(
		"{team}", strconv.FormatInt(teamID, 10),
	).Replace(a.keyTemplate)
}

func generateToken() (string, error) {
	randomBytes := make([]byte, 12)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	return tokenPrefix + hex.EncodeToString(randomBytes), nil
}

// IssueToken mints the team's bearer token and stores it under the
// configured key. Registration calls it once per team; with auth
// disabled it is a no-op and the empty string means no token.
func (a *Auth) IssueToken(ctx context.Context, teamID int64, role string) (string, error) {
	if !a.enabled {
		return "", nil
	}

	token, err := generateToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	key := a.key(teamID)
	err = a.redis.HSet(ctx, key, map[string]interface{}{
		"token":            token,
		"role":             role,
		"created_dttm_utc": time.Now().UTC().Format(timeFormat),
	}).Err()
	if err != nil {
		return "", fmt.Errorf("failed to store token: %w", err)
	}

	logger.Info.Printf("issued %s token for team %d", role, teamID)
	return token, nil
}

// Resolve validates the token for a team and returns the caller's
// capability. With auth disabled every caller is a player for the team
// they name, which is what tests and local runs want.
func (a *Auth) Resolve(ctx context.Context, teamID int64, token string) (*Capability, error) {
	if !a.enabled {
		return &Capability{TeamID: teamID, Role: RolePlayer}, nil
	}

	key := a.key(teamID)

	fields, err := a.redis.HGetAll(ctx, key).Result()
	if err == redis.Nil || len(fields) == 0 {
		logger.Debug.Printf("Capability not found for key: %s", key)
		return nil, fmt.Errorf("capability not found")
	}
	if err != nil {
		logger.Debug.Printf("Redis error: %v", err)
		return nil, fmt.Errorf("redis error: %w", err)
	}

	if fields["token"] != token {
		logger.Debug.Printf("Token mismatch for team %d and key %s", teamID, key)
		return nil, fmt.Errorf("invalid token")
	}

	role := fields["role"]
	if role == "" {
		role = RolePlayer
	}

	return &Capability{TeamID: teamID, Role: role}, nil
}
