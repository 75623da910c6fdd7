package readcomic

import (
	"net/url"
	"strings"
	"sync"
)

// maxImageHosts bounds the remembered image hosts; the oldest is evicted first
const maxImageHosts = 512

// hostSet remembers the hosts of image URLs the site has handed out
type hostSet struct {
	mu    sync.RWMutex
	hosts map[string]struct{}
	order []string
}

func newHostSet() *hostSet {
	return &hostSet{hosts: make(map[string]struct{})}
}

func (h *hostSet) add(rawURL string) {
	host := imageHost(rawURL)
	if host == "" {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.hosts[host]; ok {
		return
	}
	if len(h.order) >= maxImageHosts {
		delete(h.hosts, h.order[0])
		h.order = h.order[1:]
	}
	h.hosts[host] = struct{}{}
	h.order = append(h.order, host)
}

func (h *hostSet) contains(host string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.hosts[host]
	return ok
}

// imageHost returns the lower-cased host:port of an http(s) URL, or ""
func imageHost(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return ""
	}
	return strings.ToLower(u.Host)
}

// AllowsImage reports whether rawURL points at the site itself or at a host
// that served a thumbnail or chapter page this process has extracted
func (s *Source) AllowsImage(rawURL string) bool {
	host := imageHost(rawURL)
	if host == "" {
		return false
	}
	return host == imageHost(s.baseURL) || s.imageHosts.contains(host)
}

func (s *Source) rememberImages(urls ...string) {
	for _, u := range urls {
		if u != "" {
			s.imageHosts.add(u)
		}
	}
}
