package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaharia-lab/verimail/internal/storage"
)

func TestReadInput(t *testing.T) {
	got, err := readInput(strings.NewReader("from stdin"), nil)
	require.NoError(t, err)
	assert.Equal(t, "from stdin", string(got))

	got, err = readInput(strings.NewReader("dash"), []string{"-"})
	require.NoError(t, err)
	assert.Equal(t, "dash", string(got))

	path := filepath.Join(t.TempDir(), "event.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"email":"a@example.com"}`), 0o600))
	got, err = readInput(nil, []string{path})
	require.NoError(t, err)
	assert.JSONEq(t, `{"email":"a@example.com"}`, string(got))

	_, err = readInput(nil, []string{filepath.Join(t.TempDir(), "missing.json")})
	assert.Error(t, err)
}

func TestRenderDeliveries(t *testing.T) {
	assert.Equal(t, "No deliveries recorded.", renderDeliveries(nil))

	out := renderDeliveries([]storage.DeliveryLogEntry{
		{MessageID: "m-1", Recipient: "alice@example.com", Transport: "smtp", Stage: "recorded", Status: "sent", DurationMS: 12, CreatedAt: time.Now()},
		{MessageID: "m-2", Stage: "decoded", Status: "failed", ErrorKind: "missing_field", ErrorMsg: `decode: missing field "email"`, CreatedAt: time.Now()},
	})
	assert.Contains(t, out, "alice@example.com")
	assert.Contains(t, out, "missing_field")
	assert.Contains(t, out, "STATUS")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}

func TestVersionCmd(t *testing.T) {
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.True(t, strings.HasPrefix(out.String(), "verimail dev"))
}

func TestDispatchCmd_RequiresConfig(t *testing.T) {
	t.Setenv("SMTP_HOST", "")
	t.Setenv("DB_HOST", "")
	t.Setenv("DB_HOST_IP", "")
	t.Setenv("VERIMAIL_DATA_DIR", t.TempDir())

	root := NewRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetIn(strings.NewReader(`{"email":"a@example.com"}`))
	root.SetArgs([]string{"dispatch"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SMTP_HOST")
}

func TestBanner(t *testing.T) {
	var out bytes.Buffer
	printBanner(&out, "v1.2.3", []bannerLine{{"Endpoint", "http://localhost:8990/api/events"}})
	assert.Contains(t, out.String(), "verimail v1.2.3")
	assert.Contains(t, out.String(), "http://localhost:8990/api/events")
}
