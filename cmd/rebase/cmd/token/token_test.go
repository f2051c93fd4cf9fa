package token

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/rebase/cmd/application"
	"github.com/agentstation/rebase/pkg/database/memory"
	"github.com/agentstation/rebase/pkg/errors"
	"github.com/agentstation/rebase/pkg/logging"
)

const secret = "0123456789abcdef"

func mint(t *testing.T, args ...string) (Minted, error) {
	t.Helper()
	cmd := NewCommand(&application.Mock{})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		return Minted{}, err
	}
	var m Minted
	require.NoError(t, json.Unmarshal(out.Bytes(), &m))
	return m, nil
}

func TestToken(t *testing.T) {
	m, err := mint(t, "robot", "--secret", secret, "--claim", "role=worker", "--claim", "level=3")
	require.NoError(t, err)
	assert.Equal(t, "robot", m.UID)
	assert.NotEqual(t, "never", m.Expires)

	store, err := memory.New(memory.WithLogger(logging.NewNopLogger()), memory.WithSecret([]byte(secret)))
	require.NoError(t, err)
	defer store.Close()

	data, err := store.Auth().AuthWithCustomToken(context.Background(), m.Token)
	require.NoError(t, err)
	assert.Equal(t, "robot", data.UID)
	assert.Equal(t, "worker", data.Claims["role"])
	assert.Equal(t, float64(3), data.Claims["level"])
	assert.WithinDuration(t, time.Now().Add(time.Hour), data.Expires, time.Minute)
}

func TestTokenWithoutExpiry(t *testing.T) {
	m, err := mint(t, "robot", "--secret", secret, "--ttl", "0")
	require.NoError(t, err)
	assert.Equal(t, "never", m.Expires)
}

func TestTokenErrors(t *testing.T) {
	t.Setenv("REBASE_SECRET", "")

	_, err := mint(t, "robot")
	var ce *errors.ConfigError
	assert.ErrorAs(t, err, &ce, "secret is required")

	_, err = mint(t, "robot", "--secret", secret, "--claim", "role")
	assert.True(t, errors.IsValidationError(err))

	_, err = mint(t, "robot", "--secret", "short")
	assert.Error(t, err)
}

func TestParseClaims(t *testing.T) {
	claims, err := parseClaims(nil)
	require.NoError(t, err)
	assert.Nil(t, claims)

	claims, err = parseClaims([]string{"admin=true", " team = blue", `tags=["a","b"]`})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"admin": true,
		"team":  " blue",
		"tags":  []any{"a", "b"},
	}, claims)
}
