package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/loykin/tether/internal/history"
)

// Sink indexes lifecycle events as OpenSearch documents. Events of a run are
// written with PUT to <index>/_doc/<run_id>-<type>, so a resent event
// overwrites its earlier copy. Events without a run ID are POSTed.
type Sink struct {
	client  *http.Client
	baseURL string
	index   string
}

func New(baseURL, index string) *Sink {
	return &Sink{
		client:  &http.Client{Timeout: 5 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		index:   index,
	}
}

// DocumentID returns the id used for e, empty when OpenSearch should assign one.
func DocumentID(e history.Event) string {
	if e.Record.RunID == "" {
		return ""
	}
	return e.Record.RunID + "-" + string(e.Type)
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", e.Type, err)
	}
	method, u := http.MethodPost, fmt.Sprintf("%s/%s/_doc", s.baseURL, url.PathEscape(s.index))
	if id := DocumentID(e); id != "" {
		method, u = http.MethodPut, u+"/"+url.PathEscape(id)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if len(bytes.TrimSpace(msg)) > 0 {
			return fmt.Errorf("opensearch sink status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
		}
		return fmt.Errorf("opensearch sink status %d", resp.StatusCode)
	}
	return nil
}
