package manager

import (
	"context"
	"math/rand/v2"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"relaypool/internal/shared/config"
	"relaypool/internal/shared/logger"
	"relaypool/internal/shared/types"
	"relaypool/proxypool/model"
	"relaypool/proxypool/prober"
	"relaypool/proxypool/region"
	"relaypool/proxypool/source"
)

// healthRecord 累计一个地址在所有探测和调用方反馈中的成功/失败次数。
type healthRecord struct {
	success  int
	failures int
}

func (h *healthRecord) failureRate() float64 {
	total := h.success + h.failures
	if total < 1 {
		total = 1
	}
	return float64(h.failures) / float64(total)
}

// Option customises a Manager at construction.
type Option func(*Manager)

// WithProber replaces the HTTP prober.
func WithProber(p prober.Prober) Option {
	return func(m *Manager) { m.prober = p }
}

// WithLabeler replaces the static region labeler.
func WithLabeler(l region.Labeler) Option {
	return func(m *Manager) { m.labeler = l }
}

// WithSources replaces the sources derived from the sources config.
func WithSources(s ...source.Source) Option {
	return func(m *Manager) { m.sources = s }
}

// WithRand sets the generator used to sample oversized candidate sets.
func WithRand(r *rand.Rand) Option {
	return func(m *Manager) { m.rng = r }
}

// Manager 是端点池的总控制器: 负责抓取、去重、探测、轮换、淘汰和统计。
//
// 所有可变状态由 mu 保护, mu 从不跨网络 I/O 持有。
type Manager struct {
	id      string
	cfg     types.PoolConf
	sources []source.Source
	prober  prober.Prober
	labeler region.Labeler
	rng     *rand.Rand
	log     zerolog.Logger

	mu         sync.Mutex
	candidates []*model.Endpoint
	index      map[string]*model.Endpoint
	rotation   []*model.Endpoint
	cursor     int
	usage      map[string]uint64
	health     map[string]*healthRecord
	closed     bool

	// 生命周期管理
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager 创建端点池并同步完成抓取和初始探测。
// sources 为 nil 时使用内置的默认来源列表。任何来源或探测失败都只会降级, 不会返回错误。
func NewManager(ctx context.Context, cfg types.PoolConf, sources *types.SourcesConf, opts ...Option) *Manager {
	cfg.ApplyDefaults()
	if sources == nil {
		sources = config.DefaultSources()
	}

	m := &Manager{
		id:      uuid.NewString(),
		cfg:     cfg,
		index:   make(map[string]*model.Endpoint),
		usage:   make(map[string]uint64),
		health:  make(map[string]*healthRecord),
		sources: buildSources(cfg, sources),
	}
	m.ctx, m.cancel = context.WithCancel(context.WithoutCancel(ctx))
	for _, opt := range opts {
		opt(m)
	}
	if m.prober == nil {
		m.prober = prober.NewHTTPProber(cfg.ProbeTarget, cfg.ProbeTimeout())
	}
	if m.labeler == nil {
		m.labeler = region.NewStaticLabeler()
	}
	if m.rng == nil {
		m.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	m.log = logger.WithComponent("Pool/Manager").With().Str("pool_id", m.id).Logger()

	m.ingest(ctx)
	m.promote(ctx)
	return m
}

// buildSources orders trusted endpoints ahead of every external source so that
// trusted entries win deduplication ties.
func buildSources(cfg types.PoolConf, sc *types.SourcesConf) []source.Source {
	out := make([]source.Source, 0, 1+len(sc.ExternalSources)+len(sc.TableSources))
	if len(sc.TrustedEndpoints) > 0 {
		out = append(out, source.NewTrustedSource(sc.TrustedEndpoints, cfg.DefaultPort))
	}
	for _, u := range sc.ExternalSources {
		out = append(out, source.NewTextSource(u, cfg.FetchTimeout(), cfg.DefaultPort))
	}
	for _, t := range sc.TableSources {
		out = append(out, source.NewTableSource(t, cfg.FetchTimeout(), cfg.DefaultPort))
	}
	return out
}

// ID identifies this pool instance in logs.
func (m *Manager) ID() string {
	return m.id
}

// ingest 并发抓取所有来源, 按来源顺序去重并限制候选集大小。
func (m *Manager) ingest(ctx context.Context) {
	m.log.Info().Int("sources", len(m.sources)).Msg("Starting ingestion...")

	results := make([][]model.Endpoint, len(m.sources))
	var wg sync.WaitGroup
	for i, s := range m.sources {
		wg.Add(1)
		go func(i int, s source.Source) {
			defer wg.Done()
			endpoints, err := s.Fetch(ctx)
			if err != nil {
				m.log.Warn().Err(err).Str("source", s.Name()).Msg("Source failed, skipping.")
				return
			}
			results[i] = endpoints
		}(i, s)
	}
	wg.Wait()

	seen := make(map[string]struct{})
	candidates := make([]*model.Endpoint, 0)
	var duplicates int
	for _, endpoints := range results {
		for _, ep := range endpoints {
			addr := ep.Address()
			if _, dup := seen[addr]; dup {
				duplicates++
				continue
			}
			seen[addr] = struct{}{}
			candidates = append(candidates, &ep)
		}
	}

	if len(candidates) > m.cfg.CandidateCap {
		m.rng.Shuffle(len(candidates), func(i, j int) {
			candidates[i], candidates[j] = candidates[j], candidates[i]
		})
		candidates = candidates[:m.cfg.CandidateCap]
		m.log.Info().Int("cap", m.cfg.CandidateCap).Msg("Candidate set sampled down to cap.")
	}

	var trusted int
	m.mu.Lock()
	m.candidates = candidates
	for _, ep := range candidates {
		m.index[ep.Address()] = ep
		if ep.Class == model.Trusted {
			trusted++
		}
	}
	m.mu.Unlock()

	m.log.Info().
		Int("total", len(candidates)).
		Int("trusted", trusted).
		Int("untrusted", len(candidates)-trusted).
		Int("duplicates", duplicates).
		Msg("Ingestion finished.")
}

// promote 探测候选集的前缀, 把响应正常的端点加入轮换集合, 达到目标数量后立即停止。
func (m *Manager) promote(ctx context.Context) {
	m.mu.Lock()
	n := min(m.cfg.ProbeBatch, len(m.candidates))
	batch := make([]model.Endpoint, n)
	for i := range batch {
		batch[i] = *m.candidates[i]
	}
	m.mu.Unlock()

	if n == 0 {
		m.log.Error().Msg("No candidates available, rotation disabled.")
		return
	}

	m.log.Info().Int("batch", n).Int("workers", m.cfg.ProbeWorkers).Int("target", m.cfg.TargetHealthy).Msg("Starting promotion probes...")

	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.PromotionTimeout())
	defer cancel()

	g, gctx := errgroup.WithContext(probeCtx)
	g.SetLimit(m.cfg.ProbeWorkers)
	for _, ep := range batch {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			err := m.prober.Probe(gctx, ep)
			if err != nil && gctx.Err() != nil {
				// abandoned: target reached or outer timeout
				return nil
			}
			if m.recordPromotionProbe(ep, err == nil) {
				cancel()
			}
			return nil
		})
	}
	_ = g.Wait()

	m.mu.Lock()
	promoted := len(m.rotation)
	if promoted < m.cfg.MinHealthy {
		m.admitFallbackLocked(n)
	}
	size := len(m.rotation)
	m.mu.Unlock()

	if size == 0 {
		m.log.Error().Msg("No endpoints available, rotation disabled.")
		return
	}
	m.log.Info().Int("probed_healthy", promoted).Int("rotation", size).Msg("Promotion finished.")
}

// recordPromotionProbe applies one promotion probe result and reports whether
// the rotation reached its target.
func (m *Manager) recordPromotionProbe(ep model.Endpoint, ok bool) bool {
	var label string
	if ok {
		label = m.labeler.Label(ep)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.index[ep.Address()]
	if m.closed || p == nil {
		return false
	}
	m.recordProbeLocked(p, ok)
	if ok && len(m.rotation) < m.cfg.TargetHealthy && m.rotationIndexLocked(p.Address()) < 0 {
		p.Region = label
		m.rotation = append(m.rotation, p)
	}
	return len(m.rotation) >= m.cfg.TargetHealthy
}

// admitFallbackLocked 在探测成功的端点不足时, 不经探测直接以中性分数补充轮换集合。
// 优先使用探测批次之后的下一段候选; 若没有, 则使用批次内未被提升的候选。
func (m *Manager) admitFallbackLocked(batch int) {
	end := min(2*batch, len(m.candidates))
	pool := m.candidates[batch:end]
	if len(pool) == 0 {
		pool = m.candidates[:batch]
	}

	m.log.Warn().Int("healthy", len(m.rotation)).Int("fallback_pool", len(pool)).Msg("Few healthy endpoints, admitting untested ones.")
	for _, p := range pool {
		if len(m.rotation) >= m.cfg.TargetHealthy {
			break
		}
		if m.rotationIndexLocked(p.Address()) >= 0 {
			continue
		}
		p.HealthScore = model.ScoreNeutral
		p.Region = m.labeler.Label(*p)
		m.rotation = append(m.rotation, p)
	}
}

func (m *Manager) recordProbeLocked(p *model.Endpoint, ok bool) {
	rec := m.healthLocked(p.Address())
	if ok {
		rec.success++
		p.HealthScore = model.ScoreHealthy
	} else {
		rec.failures++
		p.HealthScore = model.ScoreUnhealthy
	}
}

func (m *Manager) healthLocked(addr string) *healthRecord {
	rec, ok := m.health[addr]
	if !ok {
		rec = &healthRecord{}
		m.health[addr] = rec
	}
	return rec
}

func (m *Manager) rotationIndexLocked(addr string) int {
	for i, p := range m.rotation {
		if p.Address() == addr {
			return i
		}
	}
	return -1
}

// evictLocked removes addr from rotation and keeps the cursor pointing at the
// member that would have been handed out next.
func (m *Manager) evictLocked(addr string) bool {
	idx := m.rotationIndexLocked(addr)
	if idx < 0 {
		return false
	}
	m.rotation = append(m.rotation[:idx], m.rotation[idx+1:]...)
	if idx < m.cursor {
		m.cursor--
	}
	if m.cursor >= len(m.rotation) {
		m.cursor = 0
	}
	if len(m.rotation) == 0 {
		m.log.Error().Msg("Rotation is empty, no endpoints available.")
	}
	return true
}

// Close stops background probing and discards any probe result that arrives
// afterwards. It is safe to call more than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
	m.log.Info().Msg("Endpoint pool stopped.")
	return nil
}
