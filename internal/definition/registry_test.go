package definition

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irisett-go/irisett/internal/store"
	"github.com/irisett-go/irisett/internal/storetest"
	"github.com/irisett-go/irisett/internal/tmpl"
)

func newTestRegistry(t *testing.T) (*Registry, context.Context) {
	gw := storetest.NewGateway(t)
	r := New(gw, tmpl.NewCache())
	require.NoError(t, r.Load(context.Background()))
	return r, context.Background()
}

func createTestDefinition(t *testing.T, r *Registry, ctx context.Context) int64 {
	id, err := r.Create(ctx, &store.MonitorDefinition{
		Name:           "ping",
		ExecutablePath: "/bin/ping",
		ArgvTemplate:   "-c 1 {{hostname}}",
	})
	require.NoError(t, err)
	return id
}

func TestSetParameter_InsertsThenUpdates(t *testing.T) {
	r, ctx := newTestRegistry(t)
	id := createTestDefinition(t, r, ctx)

	err := r.SetParameter(ctx, id, store.ParamSpec{Name: "hostname", Required: true})
	require.NoError(t, err)

	d, ok := r.Get(id)
	require.True(t, ok)
	require.Len(t, d.Params, 1)
	assert.Equal(t, "hostname", d.Params[0].Name)
	assert.True(t, d.Params[0].Required)

	err = r.SetParameter(ctx, id, store.ParamSpec{Name: "hostname", Required: false, DefaultValue: "localhost"})
	require.NoError(t, err)

	d, _ = r.Get(id)
	require.Len(t, d.Params, 1)
	assert.False(t, d.Params[0].Required)
	assert.Equal(t, "localhost", d.Params[0].DefaultValue)
}

func TestSetParameter_UnknownDefinition(t *testing.T) {
	r, ctx := newTestRegistry(t)
	err := r.SetParameter(ctx, 999, store.ParamSpec{Name: "hostname"})
	assert.Error(t, err)
}

func TestDeleteParameter(t *testing.T) {
	r, ctx := newTestRegistry(t)
	id := createTestDefinition(t, r, ctx)
	require.NoError(t, r.SetParameter(ctx, id, store.ParamSpec{Name: "hostname", Required: true}))
	require.NoError(t, r.SetParameter(ctx, id, store.ParamSpec{Name: "rtt"}))

	require.NoError(t, r.DeleteParameter(ctx, id, "hostname"))

	d, _ := r.Get(id)
	require.Len(t, d.Params, 1)
	assert.Equal(t, "rtt", d.Params[0].Name)
}

func TestValidateArgs(t *testing.T) {
	r, ctx := newTestRegistry(t)
	id := createTestDefinition(t, r, ctx)
	require.NoError(t, r.SetParameter(ctx, id, store.ParamSpec{Name: "hostname", Required: true}))
	require.NoError(t, r.SetParameter(ctx, id, store.ParamSpec{Name: "rtt", Required: false}))

	assert.NoError(t, r.ValidateArgs(id, map[string]string{"hostname": "example.com"}, false))
	assert.Error(t, r.ValidateArgs(id, map[string]string{}, false), "missing required arg")
	assert.NoError(t, r.ValidateArgs(id, map[string]string{}, true), "permitMissing skips the required check")
	assert.Error(t, r.ValidateArgs(id, map[string]string{"bogus": "x"}, true), "unknown arg always rejected")
}

func TestValidateArgs_UnknownDefinition(t *testing.T) {
	r, _ := newTestRegistry(t)
	assert.Error(t, r.ValidateArgs(999, nil, true))
}

func TestSeed_IsIdempotent(t *testing.T) {
	r, ctx := newTestRegistry(t)

	require.NoError(t, Seed(ctx, r))
	firstCount := len(r.List())
	assert.True(t, firstCount >= len(seedDefs))

	require.NoError(t, Seed(ctx, r))
	assert.Equal(t, firstCount, len(r.List()), "re-seeding must not duplicate definitions")

	ping, ok := r.FindByName("Ping monitor")
	require.True(t, ok)
	assert.NotEmpty(t, ping.Params)
}
