package model

import (
	"net"
	"net/url"
	"strconv"
)

// SourceClass 标记一个端点的来源。trusted 由运维提供, 优先级最高。
type SourceClass string

const (
	Trusted   SourceClass = "trusted"
	Untrusted SourceClass = "untrusted"
)

const (
	UnknownRegion = "Unknown"

	ScoreHealthy   = 1.0
	ScoreNeutral   = 0.5
	ScoreUnhealthy = 0.0
)

// Endpoint 是一个候选的上游转发端点, 是整个模块的核心数据结构。
// 它只存在于内存中, 从不持久化。
type Endpoint struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username,omitempty"`
	Password string `json:"-"`
	Scheme   string `json:"scheme"`

	Class  SourceClass `json:"source_class"`
	Source string      `json:"source"` // 来源名称, 例如 "config" 或列表 URL

	// HealthScore 来自最近一次探测, 仅供参考, 不决定是否在轮换集合中。
	HealthScore float64 `json:"health_score"`
	Region      string  `json:"region"`
}

// Address returns the dedup key "host:port".
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// HasAuth reports whether credentials were supplied.
func (e Endpoint) HasAuth() bool {
	return e.Username != ""
}

// URL renders the endpoint as a proxy URL including credentials.
func (e Endpoint) URL() *url.URL {
	u := &url.URL{
		Scheme: e.Scheme,
		Host:   e.Address(),
	}
	if e.HasAuth() {
		u.User = url.UserPassword(e.Username, e.Password)
	}
	return u
}

func (e Endpoint) String() string {
	return e.Scheme + "://" + e.Address()
}
