package config

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, ioutil.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadMinimalConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "cinder.yaml", `
domain: irc.example.test
listen:
  - address: "0.0.0.0:6667"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "irc.example.test", cfg.Domain)
	assert.Equal(t, 60000, cfg.LoginTimeoutMS)
	assert.Equal(t, "", cfg.MOTD())
}

func TestLoadMissingDomainFails(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "cinder.yaml", `
listen:
  - address: "0.0.0.0:6667"
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingListenFails(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "cinder.yaml", `
domain: irc.example.test
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadReadsMotdFile(t *testing.T) {
	dir := t.TempDir()
	motdPath := writeTempFile(t, dir, "motd.txt", "Welcome to the network.\nBe nice.\n")
	path := writeTempFile(t, dir, "cinder.yaml", `
domain: irc.example.test
motd-file: `+motdPath+`
listen:
  - address: "0.0.0.0:6667"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Contains(t, cfg.MOTD(), "Welcome to the network.")
}

func TestLoadNonexistentFileFails(t *testing.T) {
	_, err := Load(filepath.Join(os.TempDir(), "does-not-exist-cinder.yaml"))
	assert.Error(t, err)
}

func TestStateConfigConvertsOpersAndLimits(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "cinder.yaml", `
domain: irc.example.test
listen:
  - address: "0.0.0.0:6667"
opers:
  - name: alice
    bcrypt-hash: "$2a$10$abcdefghijklmnopqrstuv"
limits:
  nicklen: 20
  topiclen: 300
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	sc := cfg.StateConfig()
	require.Len(t, sc.Opers, 1)
	assert.Equal(t, "alice", sc.Opers[0].Name)
	assert.Equal(t, 20, sc.Limits.Nick)
	assert.Equal(t, 300, sc.Limits.Topic)
}

func TestListenAddressesRejectsMalformed(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "cinder.yaml", `
domain: irc.example.test
listen:
  - address: "not-a-valid-address"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	_, err = cfg.ListenAddresses()
	assert.Error(t, err)
}
