package spider

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

const robotsAgent = "civicscrape"

// robotsPolicy fetches and caches robots.txt per host. A host whose
// robots.txt cannot be fetched is treated as allowing everything.
type robotsPolicy struct {
	client *http.Client
	mu     sync.Mutex
	hosts  map[string]*robotsRules
	logger *slog.Logger
}

type robotsRules struct {
	allow      []string
	disallow   []string
	crawlDelay time.Duration
}

func newRobotsPolicy(client *http.Client, logger *slog.Logger) *robotsPolicy {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &robotsPolicy{
		client: client,
		hosts:  make(map[string]*robotsRules),
		logger: logger,
	}
}

// Check reports whether rawURL may be fetched and the crawl delay its host
// asks for.
func (rp *robotsPolicy) Check(ctx context.Context, rawURL string) (bool, time.Duration) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return true, 0
	}
	rules := rp.rulesFor(ctx, u.Scheme+"://"+u.Host)
	if rules == nil {
		return true, 0
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return rules.allowed(path), rules.crawlDelay
}

func (rp *robotsPolicy) rulesFor(ctx context.Context, origin string) *robotsRules {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	if rules, ok := rp.hosts[origin]; ok {
		return rules
	}
	rules := rp.fetch(ctx, origin)
	rp.hosts[origin] = rules
	return rules
}

func (rp *robotsPolicy) fetch(ctx context.Context, origin string) *robotsRules {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return nil
	}
	resp, err := rp.client.Do(req)
	if err != nil {
		rp.logger.Debug("robots.txt unavailable", "origin", origin, "error", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 512*1024))
	if err != nil {
		return nil
	}
	rules := parseRobots(string(body), robotsAgent)
	rp.logger.Debug("robots.txt loaded", "origin", origin,
		"disallow", len(rules.disallow), "crawl_delay", rules.crawlDelay)
	return rules
}

// parseRobots keeps the groups addressed to agent, falling back to the "*"
// groups when none name it.
func parseRobots(body, agent string) *robotsRules {
	var specific, wildcard robotsRules
	var (
		current  []*robotsRules
		inAgents bool
	)

	for _, line := range strings.Split(body, "\n") {
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}
		key, value, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		if key == "user-agent" {
			if !inAgents {
				current = nil
			}
			inAgents = true
			switch ua := strings.ToLower(value); {
			case ua == "*":
				current = append(current, &wildcard)
			case strings.Contains(ua, agent):
				current = append(current, &specific)
			}
			continue
		}
		inAgents = false

		for _, rules := range current {
			switch key {
			case "allow":
				if value != "" {
					rules.allow = append(rules.allow, value)
				}
			case "disallow":
				if value != "" {
					rules.disallow = append(rules.disallow, value)
				}
			case "crawl-delay":
				if secs, err := strconv.ParseFloat(value, 64); err == nil && secs > 0 {
					rules.crawlDelay = time.Duration(secs * float64(time.Second))
				}
			}
		}
	}

	if len(specific.allow)+len(specific.disallow) > 0 || specific.crawlDelay > 0 {
		return &specific
	}
	return &wildcard
}

// allowed applies longest-match precedence; an allow wins a tie.
func (r *robotsRules) allowed(path string) bool {
	best, allow := -1, true
	for _, p := range r.disallow {
		if n := matchRobots(p, path); n > best {
			best, allow = n, false
		}
	}
	for _, p := range r.allow {
		if n := matchRobots(p, path); n >= best && n >= 0 {
			best, allow = n, true
		}
	}
	return allow
}

// matchRobots returns the pattern length when pattern matches path and -1
// otherwise. It supports the * wildcard and a trailing $ anchor.
func matchRobots(pattern, path string) int {
	anchored := strings.HasSuffix(pattern, "$")
	parts := strings.Split(strings.TrimSuffix(pattern, "$"), "*")

	if !strings.HasPrefix(path, parts[0]) {
		return -1
	}
	if len(parts) == 1 {
		if anchored && path != parts[0] {
			return -1
		}
		return len(pattern)
	}

	pos := len(parts[0])
	last := len(parts) - 1
	for _, part := range parts[1:last] {
		idx := strings.Index(path[pos:], part)
		if idx < 0 {
			return -1
		}
		pos += idx + len(part)
	}
	if anchored {
		if !strings.HasSuffix(path[pos:], parts[last]) {
			return -1
		}
	} else if !strings.Contains(path[pos:], parts[last]) {
		return -1
	}
	return len(pattern)
}
