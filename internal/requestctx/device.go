package requestctx

import (
	"log/slog"
	"sync"

	"go.elara.ws/pcre"
)

// A tablet is a mobile agent that also carries a tablet marker.
const (
	mobilePattern = `(?i)Mobile|Android|Silk/|Kindle|BlackBerry|BB10|Opera Mini|Opera Mobi|IEMobile|Windows Phone|webOS|iPhone|iPad|iPod|PlayBook`
	tabletPattern = `(?i)iPad|Tablet|PlayBook|Kindle|Silk/|Nexus (?:7|9|10)\b|SM-T\d`
)

type patternSet struct {
	mu       sync.RWMutex
	compiled map[string]*pcre.Regexp
}

var devicePatterns = &patternSet{compiled: make(map[string]*pcre.Regexp)}

func (p *patternSet) get(pattern string) (*pcre.Regexp, error) {
	p.mu.RLock()
	if re, ok := p.compiled[pattern]; ok {
		p.mu.RUnlock()
		return re, nil
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	if re, ok := p.compiled[pattern]; ok {
		return re, nil
	}
	re, err := pcre.Compile(pattern)
	if err != nil {
		return nil, err
	}
	p.compiled[pattern] = re
	return re, nil
}

func (p *patternSet) match(pattern, subject string) bool {
	re, err := p.get(pattern)
	if err != nil {
		slog.Default().Error("Failed to compile device pattern", slog.Any("error", err))
		return false
	}
	return re.MatchString(subject)
}

// ClassifyDevice maps a user agent to mobile, tablet or desktop. Empty and
// unrecognized agents are desktop.
func ClassifyDevice(userAgent string) string {
	if userAgent == "" {
		return DeviceDesktop
	}
	if !devicePatterns.match(mobilePattern, userAgent) {
		return DeviceDesktop
	}
	if devicePatterns.match(tabletPattern, userAgent) {
		return DeviceTablet
	}
	return DeviceMobile
}
