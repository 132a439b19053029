package persistence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/deskops/helpdesk-sla/internal/config"
)

func TestNewPostgresRequiresDSN(t *testing.T) {
	pg, err := NewPostgres(context.Background(), config.PostgresConfig{}, zap.NewNop())
	assert.ErrorIs(t, err, ErrNoDSN)
	assert.Nil(t, pg)
}

func TestNilPostgresIsSafe(t *testing.T) {
	var pg *Postgres
	assert.Error(t, pg.Ping(context.Background()))
	assert.Nil(t, pg.PoolHandle())
	assert.NotPanics(t, pg.Close)
}

func TestNewRedisWithoutAddr(t *testing.T) {
	assert.Nil(t, NewRedis(config.RedisConfig{}, zap.NewNop()))
}
