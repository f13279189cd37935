package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gb28181gw/gateway/gbgwerrors"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "gbgw.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadAppliesDefaultsAndResolvesCandidate(t *testing.T) {
	path := writeConfigFile(t, "sip_port: 5060\nmedia_port: 8000\ncandidate: 10.1.2.3\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5060, cfg.SIPPort)
	assert.Equal(t, 8000, cfg.MediaPort)
	assert.Equal(t, "10.1.2.3", cfg.Candidate)
	assert.Equal(t, "34020000002000000001", cfg.GatewayID)
	assert.Equal(t, 10, cfg.SIPTimeoutSeconds)
	assert.False(t, cfg.HEVCEnabled)
}

func TestLoadRejectsInvalidSIPPort(t *testing.T) {
	path := writeConfigFile(t, "sip_port: 0\nmedia_port: 8000\ncandidate: 10.1.2.3\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, gbgwerrors.OfCategory(err, gbgwerrors.Config))
}

func TestLoadRejectsInvalidMediaPort(t *testing.T) {
	path := writeConfigFile(t, "sip_port: 5060\nmedia_port: -1\ncandidate: 10.1.2.3\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, gbgwerrors.OfCategory(err, gbgwerrors.Config))
}

func TestOutputURLSubstitutesStreamToken(t *testing.T) {
	cfg := &Config{OutputURLTemplate: "rtmp://host/live/[stream]"}
	assert.Equal(t, "rtmp://host/live/34020000001320000001", cfg.OutputURL("34020000001320000001"))
}

func TestToSessionConfigConvertsSecondsToDuration(t *testing.T) {
	cfg := &Config{
		Candidate:           "10.1.2.3",
		SIPPort:             5060,
		MediaPort:           8000,
		GatewayID:           "gbgw",
		SIPTimeoutSeconds:   10,
		ReinviteWaitSeconds: 30,
	}
	sc := cfg.ToSessionConfig()
	assert.Equal(t, int(10), int(sc.SIPTimeout.Seconds()))
	assert.Equal(t, int(30), int(sc.ReinviteWait.Seconds()))
}
