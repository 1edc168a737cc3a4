package region

import (
	"errors"
	"net"
	"testing"

	"github.com/oschwald/geoip2-golang"
	"github.com/stretchr/testify/assert"

	"relaypool/proxypool/model"
)

func TestStaticLabeler_Cycles(t *testing.T) {
	l := NewStaticLabeler("A", "B")
	ep := model.Endpoint{Host: "8.8.4.4", Port: 80}

	got := []string{l.Label(ep), l.Label(ep), l.Label(ep)}
	assert.Equal(t, []string{"A", "B", "A"}, got)
}

func TestStaticLabeler_DefaultLabels(t *testing.T) {
	l := NewStaticLabeler()
	seen := make(map[string]bool)
	for range len(defaultLabels) {
		seen[l.Label(model.Endpoint{})] = true
	}
	assert.Len(t, seen, len(defaultLabels))
}

type fakeCountryDB struct {
	names  map[string]string
	closed bool
}

func (f *fakeCountryDB) Country(ip net.IP) (*geoip2.Country, error) {
	name, ok := f.names[ip.String()]
	if !ok {
		return nil, errors.New("not found")
	}
	rec := &geoip2.Country{}
	rec.Country.Names = map[string]string{"en": name}
	return rec, nil
}

func (f *fakeCountryDB) Close() error {
	f.closed = true
	return nil
}

func TestGeoIPLabeler(t *testing.T) {
	db := &fakeCountryDB{names: map[string]string{"8.8.4.4": "United States"}}
	g := &GeoIPLabeler{db: db}

	assert.Equal(t, "United States", g.Label(model.Endpoint{Host: "8.8.4.4"}))
	assert.Equal(t, model.UnknownRegion, g.Label(model.Endpoint{Host: "1.1.1.1"}))
	assert.Equal(t, model.UnknownRegion, g.Label(model.Endpoint{Host: "relay.example.org"}))

	assert.NoError(t, g.Close())
	assert.True(t, db.closed)
}
