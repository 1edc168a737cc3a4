package source

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"relaypool/internal/shared/logger"
	"relaypool/internal/shared/types"
	"relaypool/proxypool/model"
)

const defaultRowSelector = "table tbody tr"

// TableSource 实现了 Source 接口, 从发布 HTML 表格的页面抓取候选地址。
type TableSource struct {
	cfg         types.TableSource
	timeout     time.Duration
	defaultPort int
}

// NewTableSource 创建一个新的 TableSource 实例。
func NewTableSource(cfg types.TableSource, timeout time.Duration, defaultPort int) *TableSource {
	if cfg.RowSelect == "" {
		cfg.RowSelect = defaultRowSelector
	}
	return &TableSource{
		cfg:         cfg,
		timeout:     timeout,
		defaultPort: defaultPort,
	}
}

func (s *TableSource) Name() string {
	return s.cfg.URL
}

func (s *TableSource) Fetch(ctx context.Context) ([]model.Endpoint, error) {
	l := logger.WithComponent("Pool/Source")
	l.Info().Str("source", s.Name()).Msg("Scraping candidate table...")

	// A fresh collector per fetch; colly callbacks accumulate otherwise.
	c := colly.NewCollector(
		colly.UserAgent(userAgent),
		colly.StdlibContext(ctx),
	)
	c.SetRequestTimeout(s.timeout)

	var (
		mu    sync.Mutex
		lines []string
	)
	c.OnHTML(s.cfg.RowSelect, func(e *colly.HTMLElement) {
		host := cellText(e.DOM, s.cfg.HostColumn)
		port := cellText(e.DOM, s.cfg.PortColumn)
		if host == "" {
			return
		}

		line := host
		if port != "" {
			line = host + ":" + port
		}
		if s.cfg.Scheme != "" {
			line = s.cfg.Scheme + "://" + line
		}

		mu.Lock()
		lines = append(lines, line)
		mu.Unlock()
	})

	if err := c.Visit(s.cfg.URL); err != nil {
		return nil, &SourceFetchError{Source: s.Name(), Err: fmt.Errorf("visit failed: %w", err)}
	}
	c.Wait()

	endpoints := parseLines(l, lines, model.Untrusted, s.Name(), s.defaultPort)
	l.Info().Int("rows", len(lines)).Int("count", len(endpoints)).Str("source", s.Name()).Msg("Scrape finished.")
	return endpoints, nil
}

func cellText(row *goquery.Selection, idx int) string {
	return strings.TrimSpace(row.Find("td").Eq(idx).Text())
}
