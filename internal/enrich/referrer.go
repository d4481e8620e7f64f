package enrich

import (
	"net/url"
	"strings"
)

// InternalSource labels referrers on the same host as the page.
const InternalSource = "Internal"

var knownSources = map[string]string{
	"google.com":           "Google",
	"google.co.uk":         "Google",
	"google.de":            "Google",
	"google.fr":            "Google",
	"google.es":            "Google",
	"bing.com":             "Bing",
	"duckduckgo.com":       "DuckDuckGo",
	"ecosia.org":           "Ecosia",
	"kagi.com":             "Kagi",
	"yahoo.com":            "Yahoo",
	"yandex.ru":            "Yandex",
	"baidu.com":            "Baidu",
	"facebook.com":         "Facebook",
	"fb.com":               "Facebook",
	"instagram.com":        "Instagram",
	"linkedin.com":         "LinkedIn",
	"lnkd.in":              "LinkedIn",
	"x.com":                "X/Twitter",
	"twitter.com":          "X/Twitter",
	"t.co":                 "X/Twitter",
	"bsky.app":             "Bluesky",
	"threads.net":          "Threads",
	"mastodon.social":      "Mastodon",
	"reddit.com":           "Reddit",
	"news.ycombinator.com": "Hacker News",
	"youtube.com":          "YouTube",
	"youtu.be":             "YouTube",
	"tiktok.com":           "TikTok",
	"pinterest.com":        "Pinterest",
	"whatsapp.com":         "WhatsApp",
	"t.me":                 "Telegram",
	"slack.com":            "Slack",
	"discord.com":          "Discord",
	"github.com":           "GitHub",
	"mail.google.com":      "Gmail",
	"outlook.live.com":     "Outlook",
	"outlook.office.com":   "Outlook",
	"substack.com":         "Substack",
	"medium.com":           "Medium",
}

// SourceName names the site a referrer URL belongs to. Subdomains resolve
// to the closest known parent; unknown hosts are returned without "www.".
// An empty or unparsable referrer yields "".
func SourceName(referrer, pageURL string) string {
	host := hostOf(referrer)
	if host == "" {
		return ""
	}
	if page := hostOf(pageURL); page != "" && page == host {
		return InternalSource
	}

	for candidate := host; candidate != ""; candidate = parentDomain(candidate) {
		if name, ok := knownSources[candidate]; ok {
			return name
		}
	}
	return host
}

func hostOf(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// parentDomain drops the left-most label, stopping before the bare TLD.
func parentDomain(host string) string {
	idx := strings.IndexByte(host, '.')
	if idx < 0 {
		return ""
	}
	parent := host[idx+1:]
	if !strings.Contains(parent, ".") {
		return ""
	}
	return parent
}
