package analytics

import (
	"log/slog"
	"net"

	"github.com/oschwald/maxminddb-golang"
)

// GeoResolver maps viewer IPs to a country code. It is optional: without a
// MaxMind database every lookup returns empty and events simply carry no
// country.
type GeoResolver struct {
	db *maxminddb.Reader
}

type geoRecord struct {
	Country struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"country"`
}

func NewGeoResolver(dbPath string) *GeoResolver {
	if dbPath == "" {
		return &GeoResolver{}
	}
	db, err := maxminddb.Open(dbPath)
	if err != nil {
		slog.Warn("analytics: failed to open geoip database, country lookups disabled", "path", dbPath, "error", err)
		return &GeoResolver{}
	}
	slog.Info("analytics: loaded geoip database", "path", dbPath)
	return &GeoResolver{db: db}
}

func (g *GeoResolver) Country(ipStr string) string {
	if g == nil || g.db == nil || ipStr == "" {
		return ""
	}
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return ""
	}
	var rec geoRecord
	if err := g.db.Lookup(ip, &rec); err != nil {
		return ""
	}
	return rec.Country.ISOCode
}

func (g *GeoResolver) Close() error {
	if g.db != nil {
		return g.db.Close()
	}
	return nil
}
