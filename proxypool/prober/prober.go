package prober

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/proxy"

	"relaypool/internal/shared/logger"
	"relaypool/proxypool/model"
)

const (
	DefaultTarget = "http://httpbin.org/ip"

	// maxProbeBody bounds how much of the echo response is read.
	maxProbeBody = 64 << 10
)

// ProbeError wraps every way a probe can fail: dial errors, timeouts, bad
// status codes and empty bodies.
type ProbeError struct {
	Address string
	Err     error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("probe %s: %v", e.Address, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// Prober 对单个端点执行一次连通性检查。
type Prober interface {
	Probe(ctx context.Context, ep model.Endpoint) error
}

// HTTPProber 通过候选端点向固定的回显目标发起一次最小的 GET 请求。
// 成功条件: 状态码 200 且响应体非空。
type HTTPProber struct {
	target  string
	timeout time.Duration
}

func NewHTTPProber(target string, timeout time.Duration) *HTTPProber {
	if target == "" {
		target = DefaultTarget
	}
	return &HTTPProber{
		target:  target,
		timeout: timeout,
	}
}

func (p *HTTPProber) Probe(ctx context.Context, ep model.Endpoint) error {
	l := logger.WithComponent("Pool/Prober")
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.probe(ctx, ep)
	if err != nil {
		l.Debug().Err(err).Str("endpoint", ep.Address()).Msg("Probe failed.")
		return &ProbeError{Address: ep.Address(), Err: err}
	}
	l.Debug().Str("endpoint", ep.Address()).Dur("latency", time.Since(start)).Msg("Probe passed.")
	return nil
}

func (p *HTTPProber) probe(ctx context.Context, ep model.Endpoint) error {
	transport, err := p.transportFor(ep)
	if err != nil {
		return err
	}
	defer transport.CloseIdleConnections()

	client := &http.Client{
		Transport: transport,
		Timeout:   p.timeout,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.target, nil)
	if err != nil {
		return fmt.Errorf("failed to create probe request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("received non-200 status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProbeBody))
	if err != nil {
		return fmt.Errorf("failed to read probe body: %w", err)
	}
	if len(body) == 0 {
		return fmt.Errorf("empty probe body")
	}
	return nil
}

// transportFor builds a one-shot transport that forwards through ep.
func (p *HTTPProber) transportFor(ep model.Endpoint) (*http.Transport, error) {
	dialer := &net.Dialer{
		Timeout:   p.timeout,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DisableKeepAlives:   true,
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: true},
		TLSHandshakeTimeout: p.timeout,
		IdleConnTimeout:     p.timeout,
	}

	switch ep.Scheme {
	case "socks5", "socks5h":
		var auth *proxy.Auth
		if ep.HasAuth() {
			auth = &proxy.Auth{User: ep.Username, Password: ep.Password}
		}
		socks, err := proxy.SOCKS5("tcp", ep.Address(), auth, dialer)
		if err != nil {
			return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
		}
		contextDialer, ok := socks.(proxy.ContextDialer)
		if !ok {
			return nil, fmt.Errorf("SOCKS5 dialer does not support contexts")
		}
		transport.DialContext = contextDialer.DialContext
	default:
		transport.Proxy = http.ProxyURL(ep.URL())
		transport.DialContext = dialer.DialContext
	}
	return transport, nil
}
