package app

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"golang.org/x/crypto/bcrypt"

	"github.com/shrimpsizemoose/kungsborg/internal/events"
	"github.com/shrimpsizemoose/kungsborg/internal/koth"
	"github.com/shrimpsizemoose/kungsborg/internal/leaderboard"
	"github.com/shrimpsizemoose/kungsborg/internal/models"
	"github.com/shrimpsizemoose/kungsborg/internal/scoring"
	"github.com/shrimpsizemoose/kungsborg/internal/store"
)

// Service wires the scoring core together: the ledger store underneath,
// the validator, hint ledger, aggregator and arbiter on top of it, and
// the leaderboard projection listening on the event bus.
type Service struct {
	Config      *Config
	Store       store.LedgerStore
	Bus         *events.Bus
	Validator   *scoring.Validator
	Hints       *scoring.HintLedger
	Aggregator  *scoring.Aggregator
	Arbiter     *koth.Arbiter
	Leaderboard *leaderboard.Cache
	Auth        *Auth

	redis *redis.Client
}

func NewService(configPath string) (*Service, error) {
	config, err := LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	ledger, err := NewStore(config.Database.DSN, config.Database.MigrationsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to init store: %w", err)
	}

	var rdb *redis.Client
	if config.Auth.RedisURL != "" {
		opt, err := redis.ParseURL(config.Auth.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis URL: %w", err)
		}
		rdb = redis.NewClient(opt)
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
	}

	auth, err := NewAuth(config, rdb)
	if err != nil {
		return nil, fmt.Errorf("failed to init auth: %w", err)
	}

	return NewServiceWith(config, ledger, rdb, auth), nil
}

// NewServiceWith assembles a service from ready components. Tests use it
// to drop in an in-memory store and skip redis.
func NewServiceWith(config *Config, ledger store.LedgerStore, rdb *redis.Client, auth *Auth) *Service {
	bus := events.NewBus()

	var rule koth.CaptureRule
	if !config.Koth.TakeoverNeedsProof {
		rule = func(*models.KothTarget, string) bool { return true }
	}

	var snapshotClient *redis.Client
	if config.Leaderboard.PublishSnapshot {
		snapshotClient = rdb
	}

	agg := scoring.NewAggregator(ledger)
	return &Service{
		Config:     config,
		Store:      ledger,
		Bus:        bus,
		Validator:  scoring.NewValidator(ledger, bus),
		Hints:      scoring.NewHintLedger(ledger, bus),
		Aggregator: agg,
		Arbiter:    koth.NewArbiter(ledger, bus, rule),
		Leaderboard: leaderboard.NewCache(
			agg,
			ledger,
			snapshotClient,
			config.LeaderboardDebounce(),
			config.LeaderboardRefresh(),
		),
		Auth:  auth,
		redis: rdb,
	}
}

// Start launches the event consumers: the aggregator keeping running
// totals and the leaderboard refresher. Both stop when ctx is done.
func (s *Service) Start(ctx context.Context) {
	aggCh := s.Bus.Subscribe(256)
	boardCh := s.Bus.Subscribe(256)

	go s.Aggregator.Run(aggCh)
	go s.Leaderboard.Run(ctx, boardCh)
}

// RegisterTeam creates a team with a bcrypt-hashed password and mints
// its bearer token. Uniqueness of the name is left to the store's
// constraint; with auth disabled the token is empty.
func (s *Service) RegisterTeam(ctx context.Context, name, affiliation, password string) (*models.Team, string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash password: %w", err)
	}

	team := &models.Team{
		Name:         name,
		Affiliation:  affiliation,
		PasswordHash: string(hash),
		RegisteredAt: time.Now().Unix(),
	}
	if err := team.Validate(); err != nil {
		return nil, "", err
	}
	if err := s.Store.CreateTeam(ctx, team); err != nil {
		return nil, "", err
	}

	token, err := s.Auth.IssueToken(ctx, team.ID, RolePlayer)
	if err != nil {
		return nil, "", fmt.Errorf("team %d created but token issuance failed: %w", team.ID, err)
	}
	return team, token, nil
}

func (s *Service) Close() error {
	var errs []error

	s.Bus.Close()

	if err := s.Store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store: %w", err))
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors while closing: %v", errs)
	}
	return nil
}
