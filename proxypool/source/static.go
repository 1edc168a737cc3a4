package source

import (
	"context"

	"relaypool/internal/shared/logger"
	"relaypool/proxypool/model"
)

// StaticSource serves a fixed list of endpoint strings, typically the
// operator's trusted relays from sources.yaml.
type StaticSource struct {
	name        string
	lines       []string
	class       model.SourceClass
	defaultPort int
}

// NewTrustedSource builds the source for operator-supplied endpoints.
func NewTrustedSource(lines []string, defaultPort int) *StaticSource {
	return &StaticSource{
		name:        "config",
		lines:       lines,
		class:       model.Trusted,
		defaultPort: defaultPort,
	}
}

// NewStaticSource builds an untrusted in-memory source.
func NewStaticSource(name string, lines []string, defaultPort int) *StaticSource {
	return &StaticSource{
		name:        name,
		lines:       lines,
		class:       model.Untrusted,
		defaultPort: defaultPort,
	}
}

func (s *StaticSource) Name() string {
	return s.name
}

func (s *StaticSource) Fetch(_ context.Context) ([]model.Endpoint, error) {
	l := logger.WithComponent("Pool/Source")
	return parseLines(l, s.lines, s.class, s.name, s.defaultPort), nil
}
