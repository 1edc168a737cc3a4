package types

import "time"

// PoolConf 包含代理池管理器的行为参数。
// 所有时间字段以秒为单位, 零值由 ApplyDefaults 补齐。
type PoolConf struct {
	CandidateCap            int     `ini:"candidate_cap"`
	ProbeBatch              int     `ini:"probe_batch"`
	ProbeWorkers            int     `ini:"probe_workers"`
	TargetHealthy           int     `ini:"target_healthy"`
	MinHealthy              int     `ini:"min_healthy"`
	ReprobeEvery            int     `ini:"reprobe_every"`
	ReprobeMode             string  `ini:"reprobe_mode"` // sync, async, off
	FailureRateThreshold    float64 `ini:"failure_rate_threshold"`
	FailureScoreStep        float64 `ini:"failure_score_step"`
	DefaultPort             int     `ini:"default_port"`
	FetchTimeoutSeconds     int     `ini:"fetch_timeout_seconds"`
	ProbeTimeoutSeconds     int     `ini:"probe_timeout_seconds"`
	PromotionTimeoutSeconds int     `ini:"promotion_timeout_seconds"`
	ProbeTarget             string  `ini:"probe_target"`
	GeoIPDatabase           string  `ini:"geoip_db"`
}

// LogConf contains logging specific configuration
type LogConf struct {
	Level string `ini:"level"`
	JSON  bool   `ini:"json"`
}

// WebConf 包含 Web API 的配置
type WebConf struct {
	Port                 int    `ini:"port"`
	User                 string `ini:"user"`
	Password             string `ini:"password"`
	StatsIntervalSeconds int    `ini:"stats_interval_seconds"`
}

// Config 是 relaypool 的统一行为配置
type Config struct {
	PoolConf `ini:"pool"`
	LogConf  `ini:"log"`
	WebConf  `ini:"web"`
}

const (
	ReprobeSync  = "sync"
	ReprobeAsync = "async"
	ReprobeOff   = "off"
)

// ApplyDefaults fills every unset field with the pool's stock value.
func (c *PoolConf) ApplyDefaults() {
	setInt(&c.CandidateCap, 500)
	setInt(&c.ProbeBatch, 50)
	setInt(&c.ProbeWorkers, 20)
	setInt(&c.TargetHealthy, 10)
	setInt(&c.MinHealthy, 5)
	setInt(&c.ReprobeEvery, 10)
	setInt(&c.DefaultPort, 8080)
	setInt(&c.FetchTimeoutSeconds, 15)
	setInt(&c.ProbeTimeoutSeconds, 3)
	setInt(&c.PromotionTimeoutSeconds, 15)
	if c.FailureRateThreshold <= 0 {
		c.FailureRateThreshold = 0.5
	}
	if c.FailureScoreStep <= 0 {
		c.FailureScoreStep = 0.1
	}
	switch c.ReprobeMode {
	case ReprobeSync, ReprobeAsync, ReprobeOff:
	default:
		c.ReprobeMode = ReprobeSync
	}
	if c.ProbeTarget == "" {
		c.ProbeTarget = "http://httpbin.org/ip"
	}
}

// ApplyDefaults fills unset fields of every section.
func (c *Config) ApplyDefaults() {
	c.PoolConf.ApplyDefaults()
	if c.LogConf.Level == "" {
		c.LogConf.Level = "info"
	}
	setInt(&c.WebConf.StatsIntervalSeconds, 5)
}

func (c *PoolConf) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

func (c *PoolConf) ProbeTimeout() time.Duration {
	return time.Duration(c.ProbeTimeoutSeconds) * time.Second
}

func (c *PoolConf) PromotionTimeout() time.Duration {
	return time.Duration(c.PromotionTimeoutSeconds) * time.Second
}

func setInt(target *int, def int) {
	if *target <= 0 {
		*target = def
	}
}
