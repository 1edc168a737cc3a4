package model

// Stats is a point-in-time view of a pool. It is computed on demand and
// never stored.
type Stats struct {
	PoolID              string         `json:"pool_id"`
	TotalProxies        int            `json:"total_proxies"`
	HealthyProxies      int            `json:"healthy_proxies"`
	OwnedProxies        int            `json:"owned_proxies"`
	FreeProxies         int            `json:"free_proxies"`
	CountriesAvailable  int            `json:"countries_available"`
	CountryDistribution map[string]int `json:"country_distribution"`
	HealthRate          float64        `json:"health_rate"`
}
