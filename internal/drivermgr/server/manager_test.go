package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type funcServer func(ctx context.Context) error

func (f funcServer) Start(ctx context.Context) error { return f(ctx) }

func TestManagerStopsAllOnFirstError(t *testing.T) {
	m := &Manager{}
	boom := errors.New("listen failed")

	stopped := make(chan struct{})
	m.Add(funcServer(func(ctx context.Context) error {
		<-ctx.Done()
		close(stopped)
		return nil
	}))
	m.Add(funcServer(func(context.Context) error { return boom }))

	assert.ErrorIs(t, m.Start(context.Background()), boom)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("sibling server not stopped")
	}
	m.SetServing(true)
}

func TestManagerStopsOnCancel(t *testing.T) {
	m := &Manager{}
	m.Add(funcServer(func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, m.Start(ctx))
}
