package config_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jcelaya/stars/pkg/config"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, config.Default().Validate())
}

func TestValidateRejectsBadPolicy(t *testing.T) {
	cfg := config.Default()
	cfg.Node.Policy = "quantum"
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "node.policy")
}

func TestValidateAggregatesMultipleErrors(t *testing.T) {
	cfg := config.Default()
	cfg.Dispatch.UpdateBandwidth = -1
	cfg.Summary.AvailClusters = 0
	err := cfg.Validate()
	require.Error(t, err)
	verrs, ok := err.(config.ValidationErrors)
	require.True(t, ok)
	require.Len(t, verrs, 2)
}

func TestLoadWithNoFileUsesDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	require.Equal(t, config.Default().Dispatch.Heartbeat, cfg.Dispatch.Heartbeat)
}
