package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRegistry_HealthCheckAll(t *testing.T) {
	r := NewRegistry(time.Second)
	down := errors.New("connection refused")

	r.Register("postgres", CheckerFunc(func(context.Context) error { return nil }))
	r.Register("cache", CheckerFunc(func(context.Context) error { return down }))

	assert.Equal(t, []string{"cache", "postgres"}, r.List())

	results := r.HealthCheckAll(context.Background())
	assert.NoError(t, results["postgres"])
	assert.ErrorIs(t, results["cache"], down)
	assert.False(t, Healthy(results))

	r.Unregister("cache")
	assert.True(t, Healthy(r.HealthCheckAll(context.Background())))
}

func TestRegistry_Timeout(t *testing.T) {
	r := NewRegistry(20 * time.Millisecond)
	r.Register("slow", CheckerFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	results := r.HealthCheckAll(context.Background())
	assert.ErrorIs(t, results["slow"], context.DeadlineExceeded)
}
