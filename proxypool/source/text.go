package source

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"relaypool/internal/shared/logger"
	"relaypool/proxypool/model"
)

// maxListBytes bounds how much of a single list is read.
const maxListBytes = 16 << 20

// TextSource 实现了 Source 接口, 抓取以换行分隔的候选地址列表。
type TextSource struct {
	url         string
	client      *http.Client
	defaultPort int
}

// NewTextSource 创建一个新的 TextSource 实例。
func NewTextSource(url string, timeout time.Duration, defaultPort int) *TextSource {
	return &TextSource{
		url: url,
		client: &http.Client{
			Timeout: timeout,
		},
		defaultPort: defaultPort,
	}
}

func (s *TextSource) Name() string {
	return s.url
}

func (s *TextSource) Fetch(ctx context.Context) ([]model.Endpoint, error) {
	l := logger.WithComponent("Pool/Source")
	l.Info().Str("source", s.Name()).Msg("Fetching candidate list...")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, &SourceFetchError{Source: s.Name(), Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &SourceFetchError{Source: s.Name(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &SourceFetchError{Source: s.Name(), StatusCode: resp.StatusCode}
	}

	var lines []string
	scanner := bufio.NewScanner(io.LimitReader(resp.Body, maxListBytes))
	for scanner.Scan() {
		lines = append(lines, strings.TrimSpace(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return nil, &SourceFetchError{Source: s.Name(), Err: fmt.Errorf("failed to read body: %w", err)}
	}

	endpoints := parseLines(l, lines, model.Untrusted, s.Name(), s.defaultPort)
	l.Info().Int("lines", len(lines)).Int("count", len(endpoints)).Str("source", s.Name()).Msg("Fetch finished.")
	return endpoints, nil
}
