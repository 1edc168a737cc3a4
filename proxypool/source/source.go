package source

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"relaypool/proxypool/model"
	"relaypool/proxypool/parser"
)

const userAgent = "relaypool/1.0 (+list-fetch)"

// Source 接口定义了从一个候选来源获取端点的行为。
type Source interface {
	// Fetch 获取并解析候选端点。实现者只负责抓取和初步解析/校验,
	// 不做探测。解析失败的行会被丢弃, 不会作为错误返回。
	Fetch(ctx context.Context) ([]model.Endpoint, error)

	// Name 返回来源名称, 用于日志记录。
	Name() string
}

// SourceFetchError reports a source that was unreachable or answered with a
// non-200 status.
type SourceFetchError struct {
	Source     string
	StatusCode int
	Err        error
}

func (e *SourceFetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.Source, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.Source, e.Err)
}

func (e *SourceFetchError) Unwrap() error { return e.Err }

// parseLines turns raw candidate lines into endpoints of the given class.
// Empty and '#' lines are skipped; bad lines are logged at debug and dropped.
func parseLines(l zerolog.Logger, lines []string, class model.SourceClass, name string, defaultPort int) []model.Endpoint {
	endpoints := make([]model.Endpoint, 0, len(lines))
	var parseFailures, invalid int

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || line[0] == '#' {
			continue
		}
		ep, err := parser.Parse(line, defaultPort)
		if err != nil {
			parseFailures++
			l.Debug().Err(err).Str("source", name).Msg("Dropping unparsable line.")
			continue
		}

		if class == model.Trusted {
			err = parser.ValidateTrusted(ep)
		} else {
			err = parser.Validate(ep)
		}
		if err != nil {
			var verr *parser.ValidationError
			if errors.As(err, &verr) {
				invalid++
			}
			l.Debug().Err(err).Str("source", name).Msg("Dropping invalid endpoint.")
			continue
		}

		ep.Class = class
		ep.Source = name
		endpoints = append(endpoints, ep)
	}

	if parseFailures > 0 || invalid > 0 {
		l.Debug().Str("source", name).Int("parse_failures", parseFailures).Int("invalid", invalid).Msg("Some lines were dropped.")
	}
	return endpoints
}
