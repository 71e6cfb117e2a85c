// Package validator implements C1: the URL allow-list/deny-list gate
// that decides which URLs are even allowed to reach the downloader.
package validator

import (
	"net/url"
	"strings"
)

// Validator is a pure function object built from configured allow/deny
// lists. It carries no mutable state, so a single instance is safe to
// share across concurrent callers.
type Validator struct {
	allowHosts []string
	denyExts   []string
}

// New builds a Validator. Host tokens and extensions are lower-cased once
// here so Validate never has to re-normalize them per call.
func New(allowHosts, denyExts []string) *Validator {
	v := &Validator{
		allowHosts: make([]string, len(allowHosts)),
		denyExts:   make([]string, len(denyExts)),
	}
	for i, h := range allowHosts {
		v.allowHosts[i] = strings.ToLower(h)
	}
	for i, e := range denyExts {
		v.denyExts[i] = strings.ToLower(e)
	}
	return v
}

// Validate reports whether rawURL is allowed to proceed past C1. It fails
// closed: any parse error, missing host, or scheme other than https is
// rejected.
func (v *Validator) Validate(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if u.Scheme != "https" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return false
	}
	if !v.hostAllowed(host) {
		return false
	}
	if v.pathDenied(u.Path) {
		return false
	}
	return true
}

func (v *Validator) hostAllowed(host string) bool {
	if len(v.allowHosts) == 0 {
		return true
	}
	for _, token := range v.allowHosts {
		if token == "" {
			continue
		}
		if strings.Contains(host, token) {
			return true
		}
	}
	return false
}

func (v *Validator) pathDenied(path string) bool {
	lower := strings.ToLower(path)
	for _, ext := range v.denyExts {
		if ext == "" {
			continue
		}
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
