package enrich

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"

	"github.com/oschwald/geoip2-golang"
)

// GeoLocator resolves client IPs to ISO country codes from a GeoLite2
// country database.
type GeoLocator struct {
	reader *geoip2.Reader
	logger *slog.Logger
}

// OpenGeoLocator opens the database at path. A missing path or file is not
// an error: GeoIP is optional and the result is nil.
func OpenGeoLocator(path string, logger *slog.Logger) (*GeoLocator, error) {
	if path == "" {
		logger.Debug("GeoIP database path not configured - country lookup disabled")
		return nil, nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		logger.Info("GeoLite2 database not found - country lookup disabled",
			slog.String("path", path),
			slog.String("hint", "Download from https://www.maxmind.com/en/geolite2/signup"))
		return nil, nil
	}

	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open GeoLite2 database: %w", err)
	}
	logger.Info("GeoLite2 database loaded", slog.String("path", path))
	return &GeoLocator{reader: reader, logger: logger}, nil
}

// Country returns the ISO code for ip, or "" when unknown.
func (g *GeoLocator) Country(ip string) string {
	if g == nil {
		return ""
	}
	parsed := net.ParseIP(ip)
	if parsed == nil || parsed.IsPrivate() || parsed.IsLoopback() || parsed.IsUnspecified() {
		return ""
	}
	record, err := g.reader.Country(parsed)
	if err != nil {
		g.logger.Debug("GeoIP lookup failed", slog.String("ip", ip), slog.Any("error", err))
		return ""
	}
	return record.Country.IsoCode
}

// Close releases the database.
func (g *GeoLocator) Close() error {
	if g == nil {
		return nil
	}
	return g.reader.Close()
}
