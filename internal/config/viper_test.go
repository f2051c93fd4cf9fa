package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetString(t *testing.T) {
	t.Setenv("REBASE_TEST_VALUE", "from-env")
	assert.Equal(t, "from-env", GetString("REBASE_TEST_VALUE"))

	viper.Set("rebase_test_other", "from-viper")
	t.Cleanup(func() { viper.Set("rebase_test_other", nil) })
	assert.Equal(t, "from-viper", GetString("rebase_test_other"))
}

func TestFirst(t *testing.T) {
	t.Setenv("REBASE_TEST_B", "b")
	assert.Equal(t, "b", First("REBASE_TEST_A", "REBASE_TEST_B"))
	assert.Empty(t, First("REBASE_TEST_A"))
}

func TestGetDuration(t *testing.T) {
	d, err := GetDuration("REBASE_TEST_TIMEOUT", time.Second)
	require.NoError(t, err)
	assert.Equal(t, time.Second, d)

	t.Setenv("REBASE_TEST_TIMEOUT", "1500ms")
	d, err = GetDuration("REBASE_TEST_TIMEOUT", time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, d)

	t.Setenv("REBASE_TEST_TIMEOUT", "soon")
	_, err = GetDuration("REBASE_TEST_TIMEOUT", time.Second)
	assert.Error(t, err)
}
