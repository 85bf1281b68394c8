package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/bi-platform/apikeys/internal/auth"
)

// writeConfig creates a config file pointing at a fresh SQLite database.
func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "database:\n" +
		"  driver: sqlite\n" +
		"  path: " + filepath.Join(dir, "keys.db") + "\n" +
		"auth:\n" +
		"  api_keys:\n" +
		"    bcrypt_rounds: 4\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func runCLI(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd("test")
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := cmd.Execute()
	return out.String(), err
}

var (
	idLine  = regexp.MustCompile(`ID:\s+(\S+)`)
	keyLine = regexp.MustCompile(`Key:\s+(pst_\S+)`)
)

func createKey(t *testing.T, cfgPath string, args ...string) (id, key string) {
	t.Helper()
	out, err := runCLI(t, cfgPath, append([]string{"create"}, args...)...)
	require.NoError(t, err)
	idm := idLine.FindStringSubmatch(out)
	km := keyLine.FindStringSubmatch(out)
	require.Len(t, idm, 2, out)
	require.Len(t, km, 2, out)
	return idm[1], km[1]
}

// ---------------------------------------------------------------------------
// create / verify / revoke
// ---------------------------------------------------------------------------

func TestKeyctl_Lifecycle(t *testing.T) {
	cfg := writeConfig(t)

	id, key := createKey(t, cfg, "--user", "alice", "--name", "laptop", "--workspace", "analytics", "--expires-in", "30d")
	assert.Len(t, key, auth.KeyLength)

	out, err := runCLI(t, cfg, "verify", key)
	require.NoError(t, err)
	assert.Contains(t, out, "user alice")
	assert.Contains(t, out, "workspace analytics")

	out, err = runCLI(t, cfg, "revoke", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Revoked API key "+id)

	_, err = runCLI(t, cfg, "verify", key)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "revoked")

	_, err = runCLI(t, cfg, "revoke", id)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already revoked")
}

func TestKeyctl_CreateRequiresFlags(t *testing.T) {
	cfg := writeConfig(t)

	_, err := runCLI(t, cfg, "create", "--user", "alice")
	assert.Error(t, err)

	_, err = runCLI(t, cfg, "create", "--user", "alice", "--name", "x", "--expires-in", "soon")
	assert.Error(t, err)
}

func TestKeyctl_VerifyUnknownKey(t *testing.T) {
	cfg := writeConfig(t)
	_, err := runCLI(t, cfg, "verify", "pst_AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_credentials")
}

func TestKeyctl_RevokeUnknownID(t *testing.T) {
	cfg := writeConfig(t)
	_, err := runCLI(t, cfg, "revoke", "does-not-exist")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

// ---------------------------------------------------------------------------
// list
// ---------------------------------------------------------------------------

func TestKeyctl_List(t *testing.T) {
	cfg := writeConfig(t)
	keepID, _ := createKey(t, cfg, "--user", "alice", "--name", "keep")
	goneID, _ := createKey(t, cfg, "--user", "alice", "--name", "gone")
	createKey(t, cfg, "--user", "bob", "--name", "other")

	_, err := runCLI(t, cfg, "revoke", goneID)
	require.NoError(t, err)

	out, err := runCLI(t, cfg, "list", "--user", "alice", "--json")
	require.NoError(t, err)
	var rows []keyRow
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 2)
	status := map[string]string{}
	for _, r := range rows {
		status[r.ID] = r.Status
	}
	assert.Equal(t, "active", status[keepID])
	assert.Equal(t, "revoked", status[goneID])

	out, err = runCLI(t, cfg, "list", "--user", "alice", "--active")
	require.NoError(t, err)
	assert.Contains(t, out, keepID)
	assert.NotContains(t, out, goneID)

	out, err = runCLI(t, cfg, "list", "--user", "nobody")
	require.NoError(t, err)
	assert.Contains(t, out, "No API keys found")
}

// ---------------------------------------------------------------------------
// generate / helpers
// ---------------------------------------------------------------------------

func TestKeyctl_GenerateIsOffline(t *testing.T) {
	// no config file exists at this path; generate must not need one
	out, err := runCLI(t, filepath.Join(t.TempDir(), "missing.yaml"), "generate", "--cost", "4")
	require.NoError(t, err)

	fields := map[string]string{}
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		k, v, ok := strings.Cut(line, ":")
		require.True(t, ok, line)
		fields[k] = strings.TrimSpace(v)
	}
	key := fields["key"]
	assert.Len(t, key, auth.KeyLength)
	assert.Equal(t, key[:auth.DisplayPrefixLength], fields["key_prefix"])
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(fields["key_hash"]), []byte(key)))
}

func TestKeyctl_MemoryDriverRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  driver: memory\n"), 0o600))

	_, err := runCLI(t, path, "list", "--user", "alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "persistent database")
}

func TestParseExpiresIn(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"90d", 90 * 24 * time.Hour, false},
		{"720h", 720 * time.Hour, false},
		{"1h30m", 90 * time.Minute, false},
		{"0d", 0, true},
		{"-1h", 0, true},
		{"xd", 0, true},
		{"tomorrow", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseExpiresIn(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
