// Copyright 2025 ToolGate
// SPDX-License-Identifier: BUSL-1.1

package governor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopImpl() Implementation {
	return ImplementationFunc(func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"result": "ok"}, nil
	})
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	c := echoContract(t)

	require.NoError(t, r.Register(c, noopImpl()))

	reg, ok := r.Lookup("echo")
	require.True(t, ok)
	assert.Equal(t, "echo", reg.Contract.Name)

	_, ok = r.Lookup("missing")
	assert.False(t, ok)
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	r := NewRegistry()
	c := echoContract(t)

	require.NoError(t, r.Register(c, noopImpl()))
	err := r.Register(c, noopImpl())
	assert.ErrorIs(t, err, ErrToolExists)
}

func TestRegistry_RegisterNil(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.Register(nil, noopImpl()))
	assert.ErrorIs(t, r.Register(echoContract(t), nil), ErrNilImplementation)
}

func TestRegistry_Names(t *testing.T) {
	r := NewRegistry()
	b, err := NewContract("beta", echoInputSchema, echoOutputSchema, []string{"result"})
	require.NoError(t, err)
	a, err := NewContract("alpha", echoInputSchema, echoOutputSchema, []string{"result"})
	require.NoError(t, err)

	require.NoError(t, r.Register(b, noopImpl()))
	require.NoError(t, r.Register(a, noopImpl()))

	assert.Equal(t, []string{"alpha", "beta"}, r.Names())
}
