package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-loyalty-ledger/internal/config"
)

func localConfig(t *testing.T) config.Config {
	cfg := config.Defaults()
	cfg.RunLocal = true
	cfg.DBDSN = filepath.Join(t.TempDir(), "ledger.db")
	return cfg
}

func TestNew_Local(t *testing.T) {
	a, err := New(context.Background(), localConfig(t), nil)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	assert.Nil(t, a.Clients)
	assert.Nil(t, a.Replay)
	assert.NotNil(t, a.Gateway)
	assert.NotNil(t, a.Identity)

	hc := a.HandlerConfig()
	assert.Nil(t, hc.Replay)
	assert.Same(t, a.Gateway, hc.Gateway)
}

func TestJobs_RunAgainstEmptyLedger(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, localConfig(t), nil)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	relay, err := a.Relay()
	require.NoError(t, err)

	jobs := a.Jobs(relay)
	require.Len(t, jobs, 2)
	assert.Equal(t, "outbox-relay", jobs[0].Name)
	assert.Equal(t, a.Config.RelayInterval, jobs[0].Interval)
	assert.Equal(t, "expiry-sweep", jobs[1].Name)

	for _, j := range jobs {
		require.NoError(t, j.Run(ctx), j.Name)
	}
}

func TestNew_BadDriver(t *testing.T) {
	cfg := localConfig(t)
	cfg.DBDriver = "oracle"
	_, err := New(context.Background(), cfg, nil)
	require.Error(t, err)
}
