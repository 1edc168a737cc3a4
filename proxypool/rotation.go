package manager

import (
	"context"

	"relaypool/internal/shared/types"
	"relaypool/proxypool/model"
)

// Acquire returns the next endpoint in round-robin order. ok is false when the
// rotation is empty or the manager is closed; that is a normal outcome, not a
// fault.
//
// Every ReprobeEvery-th acquisition of the same address re-probes it. In sync
// mode a failed re-probe evicts the endpoint and this call moves on to the
// next member, so a caller never receives an endpoint that has just failed.
// If the caller's ctx ends during a re-probe the result is discarded and ok
// is false.
func (m *Manager) Acquire(ctx context.Context) (model.Endpoint, bool) {
	for {
		ep, due, ok := m.next()
		if !ok {
			return model.Endpoint{}, false
		}
		if !due {
			return ep, true
		}

		if m.cfg.ReprobeMode == types.ReprobeAsync {
			m.reprobeInBackground(ep)
			return ep, true
		}

		err := m.prober.Probe(ctx, ep)
		if err != nil && ctx.Err() != nil {
			return model.Endpoint{}, false
		}
		if updated, healthy := m.applyReprobe(ep, err == nil); healthy {
			return updated, true
		}
		// evicted; the rotation only shrinks, so this loop terminates
	}
}

// next advances the cursor under the lock and reports whether the returned
// endpoint is due for a re-probe.
func (m *Manager) next() (model.Endpoint, bool, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || len(m.rotation) == 0 {
		return model.Endpoint{}, false, false
	}

	p := m.rotation[m.cursor]
	m.cursor = (m.cursor + 1) % len(m.rotation)

	addr := p.Address()
	m.usage[addr]++
	due := m.cfg.ReprobeMode != types.ReprobeOff && m.usage[addr]%uint64(m.cfg.ReprobeEvery) == 0
	return *p, due, true
}

// applyReprobe records a re-probe result and evicts on failure. It returns
// the refreshed endpoint and whether it is still in rotation.
func (m *Manager) applyReprobe(ep model.Endpoint, ok bool) (model.Endpoint, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.index[ep.Address()]
	if m.closed || p == nil {
		return ep, false
	}
	m.recordProbeLocked(p, ok)
	if ok {
		return *p, m.rotationIndexLocked(p.Address()) >= 0
	}
	if m.evictLocked(p.Address()) {
		m.log.Warn().Str("endpoint", p.Address()).Msg("Endpoint failed re-probe, removed from rotation.")
	}
	return *p, false
}

func (m *Manager) reprobeInBackground(ep model.Endpoint) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		err := m.prober.Probe(m.ctx, ep)
		if m.ctx.Err() != nil {
			return
		}
		m.applyReprobe(ep, err == nil)
	}()
}

// ReportFailure is advisory feedback from a caller whose request through ep
// failed. The score drops by FailureScoreStep; once the address's failure
// rate exceeds FailureRateThreshold it leaves the rotation.
func (m *Manager) ReportFailure(ep model.Endpoint) {
	m.mu.Lock()
	defer m.mu.Unlock()

	addr := ep.Address()
	p := m.index[addr]
	if m.closed || p == nil {
		m.log.Debug().Str("endpoint", addr).Msg("Failure reported for unknown endpoint, ignoring.")
		return
	}

	p.HealthScore = max(model.ScoreUnhealthy, p.HealthScore-m.cfg.FailureScoreStep)
	rec := m.healthLocked(addr)
	rec.failures++

	rate := rec.failureRate()
	if rate > m.cfg.FailureRateThreshold && m.evictLocked(addr) {
		m.log.Warn().Str("endpoint", addr).Float64("failure_rate", rate).Msg("Removing unreliable endpoint from rotation.")
	}
}

// ReportSuccess counts a successful use of ep toward its failure rate.
func (m *Manager) ReportSuccess(ep model.Endpoint) {
	m.mu.Lock()
	defer m.mu.Unlock()

	addr := ep.Address()
	if m.closed || m.index[addr] == nil {
		return
	}
	m.healthLocked(addr).success++
}

// Stats 返回当前池状态的只读快照。
func (m *Manager) Stats() model.Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := model.Stats{
		PoolID:              m.id,
		TotalProxies:        len(m.candidates),
		HealthyProxies:      len(m.rotation),
		CountryDistribution: make(map[string]int),
	}
	for _, p := range m.candidates {
		switch p.Class {
		case model.Trusted:
			stats.OwnedProxies++
		case model.Untrusted:
			stats.FreeProxies++
		}
	}
	for _, p := range m.rotation {
		stats.CountryDistribution[p.Region]++
	}
	stats.CountriesAvailable = len(stats.CountryDistribution)
	stats.HealthRate = float64(stats.HealthyProxies) / float64(max(1, stats.TotalProxies))
	return stats
}

// Snapshot returns copies of the rotation members in rotation order.
func (m *Manager) Snapshot() []model.Endpoint {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.Endpoint, len(m.rotation))
	for i, p := range m.rotation {
		out[i] = *p
	}
	return out
}
