package history

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
)

// Session is the captured host-page request template the client replays:
// the history endpoint plus the auth headers of a logged-in browser
// session. The user exports it once from their browser; nothing here ever
// touches platform networking primitives.
type Session struct {
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`
}

// LoadSession reads and validates a session capture file.
func LoadSession(path string) (Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Session{}, fmt.Errorf("reading session file: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return Session{}, fmt.Errorf("parsing session file %s: %w", path, err)
	}
	if err := sess.Validate(); err != nil {
		return Session{}, fmt.Errorf("invalid session file %s: %w", path, err)
	}
	return sess, nil
}

func (s Session) Validate() error {
	if strings.TrimSpace(s.URL) == "" {
		return fmt.Errorf("url is required")
	}
	u, err := url.Parse(s.URL)
	if err != nil {
		return fmt.Errorf("url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url must be http(s), got %q", s.URL)
	}
	return nil
}
