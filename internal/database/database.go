package database

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type Service interface {
	Pool() *pgxpool.Pool
	Health() map[string]string
	Close()
}

type Config struct {
	Host     string
	Port     string
	Database string
	Username string
	Password string
	Schema   string
	SSLMode  string

	MaxConns        int32
	ConnectAttempts int
	RetryDelay      time.Duration
}

// URL renders a postgres:// connection string.
func (c Config) URL() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.Username, c.Password),
		Host:   c.Host + ":" + c.Port,
		Path:   c.Database,
	}
	q := u.Query()
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	q.Set("sslmode", sslMode)
	if c.Schema != "" {
		q.Set("search_path", c.Schema)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

type service struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

// New opens a pool and pings it, retrying a bounded number of times.
func New(ctx context.Context, cfg Config, log *zap.Logger) (Service, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("component", "database"))

	poolCfg, err := pgxpool.ParseConfig(cfg.URL())
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	var pool *pgxpool.Pool
	err = Retry(ctx, cfg.ConnectAttempts, cfg.RetryDelay, func(ctx context.Context, attempt int) error {
		p, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			log.Warn("database connection failed", zap.Int("attempt", attempt), zap.Error(err))
			return err
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := p.Ping(pingCtx); err != nil {
			p.Close()
			log.Warn("database ping failed", zap.Int("attempt", attempt), zap.Error(err))
			return err
		}
		pool = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	log.Info("database connected", zap.String("host", cfg.Host), zap.String("database", cfg.Database))
	return &service{pool: pool, log: log}, nil
}

func (s *service) Pool() *pgxpool.Pool {
	return s.pool
}

func (s *service) Health() map[string]string {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	stats := make(map[string]string)

	if err := s.pool.Ping(ctx); err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("db down: %v", err)
		return stats
	}

	stats["status"] = "up"
	stats["message"] = "It's healthy"

	poolStats := s.pool.Stat()
	stats["total_conns"] = strconv.Itoa(int(poolStats.TotalConns()))
	stats["idle_conns"] = strconv.Itoa(int(poolStats.IdleConns()))
	stats["acquired_conns"] = strconv.Itoa(int(poolStats.AcquiredConns()))
	stats["max_conns"] = strconv.Itoa(int(poolStats.MaxConns()))
	stats["acquire_count"] = strconv.FormatInt(poolStats.AcquireCount(), 10)
	stats["empty_acquire_count"] = strconv.FormatInt(poolStats.EmptyAcquireCount(), 10)

	return stats
}

func (s *service) Close() {
	s.log.Info("disconnecting from database")
	s.pool.Close()
}
