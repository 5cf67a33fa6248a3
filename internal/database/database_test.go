package database

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestDatabaseName(t *testing.T) {
	tests := []struct {
		dsn  string
		want string
	}{
		{dsn: "postgres://u:p@localhost:5432/faceauth?sslmode=disable", want: "faceauth"},
		{dsn: "postgres://localhost/other", want: "other"},
		{dsn: "postgres://localhost", want: ""},
		{dsn: "://bad", want: ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DatabaseName(tt.dsn), tt.dsn)
	}
}

func TestHealthCheck(t *testing.T) {
	assert.NoError(t, HealthCheck(context.Background(), pingFunc(func(context.Context) error { return nil })))

	err := HealthCheck(context.Background(), pingFunc(func(ctx context.Context) error {
		_, ok := ctx.Deadline()
		assert.True(t, ok, "health check must bound the ping")
		return errors.New("connection refused")
	}))
	assert.ErrorContains(t, err, "database unhealthy")
}

func TestDefaultPoolConfig(t *testing.T) {
	cfg := DefaultPoolConfig("postgres://localhost/faceauth")
	assert.Equal(t, int32(10), cfg.MaxConns)
	assert.Positive(t, cfg.ConnMaxLifetime)
}
