// Package region assigns best-effort region labels to endpoints.
//
// Labels are low-confidence hints. StaticLabeler does not look at the address
// at all; it hands out a rotation of plausible labels so that pools started
// without a geo database still report a distribution.
package region

import (
	"net"
	"sync/atomic"

	"github.com/oschwald/geoip2-golang"

	"relaypool/proxypool/model"
)

// Labeler assigns a region label to a freshly promoted endpoint.
type Labeler interface {
	Label(ep model.Endpoint) string
}

var defaultLabels = []string{"United States", "Canada", "United Kingdom", "Germany", "France"}

// StaticLabeler cycles through a fixed label list.
type StaticLabeler struct {
	labels []string
	next   atomic.Uint64
}

// NewStaticLabeler returns a labeler over labels, or the stock list if empty.
func NewStaticLabeler(labels ...string) *StaticLabeler {
	if len(labels) == 0 {
		labels = defaultLabels
	}
	return &StaticLabeler{labels: labels}
}

func (s *StaticLabeler) Label(_ model.Endpoint) string {
	i := s.next.Add(1) - 1
	return s.labels[i%uint64(len(s.labels))]
}

// countryReader is the part of *geoip2.Reader we use.
type countryReader interface {
	Country(ip net.IP) (*geoip2.Country, error)
	Close() error
}

// GeoIPLabeler resolves the endpoint's host against a MaxMind country or city
// database. Host names and lookups without a match fall back to Unknown.
type GeoIPLabeler struct {
	db countryReader
}

// OpenGeoIP opens a .mmdb file.
func OpenGeoIP(path string) (*GeoIPLabeler, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, err
	}
	return &GeoIPLabeler{db: db}, nil
}

func (g *GeoIPLabeler) Label(ep model.Endpoint) string {
	ip := net.ParseIP(ep.Host)
	if ip == nil {
		return model.UnknownRegion
	}
	record, err := g.db.Country(ip)
	if err != nil {
		return model.UnknownRegion
	}
	if name := record.Country.Names["en"]; name != "" {
		return name
	}
	return model.UnknownRegion
}

func (g *GeoIPLabeler) Close() error {
	return g.db.Close()
}
