// Package config provides the shared DSN-splitting helper used by
// distributed/locking/store's registry to pick a backend from a DSN
// scheme. Stores own their own DSN semantics (per spec.md §6: "the
// coordinator does not parse DSNs") — this package only supplies the
// common net/url parse-and-validate step so the registry isn't repeating
// it per backend. The CLI's own flag/env layering (cmd/lockctl) is a
// separate concern handled directly with viper, not through this package.
package config

import (
	"fmt"
	"net/url"
	"strings"
)

// DSN is a parsed store DSN: scheme selects the backend, Hosts is the
// comma-split host list (ZooKeeper and Redis Cluster-style DSNs carry more
// than one), Path is the URL path component (database/collection name,
// file directory, ZooKeeper root znode), and Query carries any remaining
// parameters (gcProbability, ttl, pool size) as the backend sees fit.
type DSN struct {
	Scheme string
	Hosts  []string
	Path   string
	Query  url.Values
	User   *url.Userinfo
}

// ParseDSN splits a store DSN of the form "scheme://host1,host2:port/path?k=v"
// into its components. It does not validate that the scheme is recognized
// or that the path/query values are acceptable to a particular backend —
// that remains each store constructor's responsibility.
func ParseDSN(raw string) (DSN, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return DSN{}, fmt.Errorf("config: parsing dsn: %w", err)
	}
	if u.Scheme == "" {
		return DSN{}, fmt.Errorf("config: dsn %q has no scheme", raw)
	}

	host := u.Host
	if host == "" && u.Opaque != "" {
		host = u.Opaque
	}

	var hosts []string
	if host != "" {
		for _, h := range strings.Split(host, ",") {
			if h = strings.TrimSpace(h); h != "" {
				hosts = append(hosts, h)
			}
		}
	}

	return DSN{
		Scheme: u.Scheme,
		Hosts:  hosts,
		Path:   strings.TrimPrefix(u.Path, "/"),
		Query:  u.Query(),
		User:   u.User,
	}, nil
}
