package fetch

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"strings"
)

// Credentials maps provider domains to bearer tokens. A token is attached
// only to requests whose host matches its domain exactly.
type Credentials map[string]string

// LoadCredentialsCSV reads a "fqdn,credential" file, one pair per line.
// Blank lines and #-comments are skipped.
func LoadCredentialsCSV(path string) (Credentials, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open credentials file: %w", err)
	}
	defer f.Close()

	creds := Credentials{}
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fqdn, cred, ok := strings.Cut(text, ",")
		fqdn = strings.ToLower(strings.TrimSpace(fqdn))
		cred = strings.TrimSpace(cred)
		if !ok || fqdn == "" || cred == "" {
			return nil, fmt.Errorf("credentials file %s line %d: want \"fqdn,credential\"", path, line)
		}
		creds[fqdn] = cred
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}
	return creds, nil
}

// ForURL returns the credential for the URL's host, if any.
func (c Credentials) ForURL(rawURL string) (string, bool) {
	if len(c) == 0 {
		return "", false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	cred, ok := c[strings.ToLower(u.Hostname())]
	return cred, ok
}
