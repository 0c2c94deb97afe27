package history

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"alexaudit/internal/audit"
)

const defaultTimeout = 30 * time.Second

// maxPages bounds the pagination loop so a host that keeps returning the
// same continuation token cannot spin us forever.
const maxPages = 1000

type historyRequest struct {
	StartTime            int64  `json:"startTime"`
	EndTime              int64  `json:"endTime"`
	PreviousRequestToken string `json:"previousRequestToken,omitempty"`
}

type historyResponse struct {
	CustomerHistoryRecords []historyRecord    `json:"customerHistoryRecords"`
	PaginationContext      *paginationContext `json:"paginationContext"`
}

type paginationContext struct {
	EncodedRequestToken string `json:"encodedRequestToken"`
}

type historyRecord struct {
	CreatedTime             int64          `json:"createdTime"`
	UtteranceType           string         `json:"utteranceType"`
	Domain                  string         `json:"domain"`
	Intent                  string         `json:"intent"`
	Device                  *historyDevice `json:"device"`
	VoiceHistoryRecordItems []historyItem  `json:"voiceHistoryRecordItems"`
}

type historyDevice struct {
	DeviceName string `json:"deviceName"`
}

type historyItem struct {
	RecordItemType string `json:"recordItemType"`
	TranscriptText string `json:"transcriptText"`
}

// FetchError reports a failed fetch together with how far pagination got,
// so the caller can surface the partial progress instead of a silent
// truncated result.
type FetchError struct {
	Fetched int
	Pages   int
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("history fetch failed after %d records (%d pages): %v", e.Fetched, e.Pages, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// FetchStats describes a completed fetch.
type FetchStats struct {
	Records int
	Pages   int
}

// Client fetches interaction history from the host API. One client runs at
// most one pagination loop at a time.
type Client struct {
	http *http.Client
	mu   sync.Mutex
}

func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{http: &http.Client{Timeout: timeout}}
}

// FetchRange pulls every record in [start, end) from the host API,
// following the continuation token until it runs out. Failures come back as
// a *FetchError carrying the partial record count.
func (c *Client) FetchRange(ctx context.Context, sess Session, start, end time.Time) ([]audit.Record, FetchStats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var all []audit.Record
	token := ""
	pages := 0

	for {
		pages++
		if pages > maxPages {
			return all, FetchStats{Records: len(all), Pages: pages - 1},
				&FetchError{Fetched: len(all), Pages: pages - 1, Err: fmt.Errorf("pagination exceeded %d pages", maxPages)}
		}

		resp, err := c.fetchPage(ctx, sess, start, end, token)
		if err != nil {
			return all, FetchStats{Records: len(all), Pages: pages - 1},
				&FetchError{Fetched: len(all), Pages: pages - 1, Err: err}
		}

		for _, raw := range resp.CustomerHistoryRecords {
			all = append(all, convertRecord(raw))
		}

		token = ""
		if resp.PaginationContext != nil {
			token = resp.PaginationContext.EncodedRequestToken
		}
		if token == "" {
			break
		}
	}

	log.Printf("history fetch done records=%d pages=%d range=%s..%s",
		len(all), pages, start.Format("2006-01-02"), end.Format("2006-01-02"))
	return all, FetchStats{Records: len(all), Pages: pages}, nil
}

func (c *Client) fetchPage(ctx context.Context, sess Session, start, end time.Time, token string) (*historyResponse, error) {
	body, err := json.Marshal(historyRequest{
		StartTime:            start.UnixMilli(),
		EndTime:              end.UnixMilli(),
		PreviousRequestToken: token,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sess.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	for k, v := range sess.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	respBody, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("host API returned %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed historyResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	return &parsed, nil
}

// convertRecord maps one wire record to the classifier's input type.
// Missing fields are left for audit.Normalize to default; the record ID is
// minted here because the host API has no stable record identifier and
// overrides need one.
func convertRecord(raw historyRecord) audit.Record {
	rec := audit.Record{
		ID:            uuid.NewString(),
		Timestamp:     raw.CreatedTime,
		UtteranceType: raw.UtteranceType,
		Domain:        raw.Domain,
		Intent:        raw.Intent,
	}
	if raw.Device != nil {
		rec.DeviceName = raw.Device.DeviceName
	}
	for _, item := range raw.VoiceHistoryRecordItems {
		rec.Items = append(rec.Items, audit.TranscriptItem{
			ItemType: item.RecordItemType,
			Text:     item.TranscriptText,
		})
	}
	return rec
}
