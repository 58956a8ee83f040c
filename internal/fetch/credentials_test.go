package fetch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "creds.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadCredentialsCSV(t *testing.T) {
	path := writeTempCSV(t, `# provider credentials
x.example.com,token-one

Y.Example.Com , token-two
`)

	creds, err := LoadCredentialsCSV(path)
	require.NoError(t, err)
	assert.Len(t, creds, 2)
	assert.Equal(t, "token-one", creds["x.example.com"])
	assert.Equal(t, "token-two", creds["y.example.com"])
}

func TestLoadCredentialsCSVRejectsBadLines(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "missing credential", content: "x.example.com,\n"},
		{name: "missing separator", content: "x.example.com token\n"},
		{name: "missing fqdn", content: ",token\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadCredentialsCSV(writeTempCSV(t, tc.content))
			require.Error(t, err)
		})
	}
}

func TestLoadCredentialsCSVMissingFile(t *testing.T) {
	_, err := LoadCredentialsCSV(filepath.Join(t.TempDir(), "nope.csv"))
	require.Error(t, err)
}

func TestCredentialsForURL(t *testing.T) {
	creds := Credentials{"x.example.com": "tok"}

	cred, ok := creds.ForURL("https://x.example.com:8443/radiodns/spi/3.1/SI.xml")
	assert.True(t, ok)
	assert.Equal(t, "tok", cred)

	_, ok = creds.ForURL("https://other.example.com/SI.xml")
	assert.False(t, ok)

	_, ok = Credentials(nil).ForURL("https://x.example.com/SI.xml")
	assert.False(t, ok)
}
