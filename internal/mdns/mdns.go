// Package mdns discovers IIOD-capable devices advertising _iio._tcp on
// the local network.
package mdns

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/grandcat/zeroconf"
)

const iioService = "_iio._tcp"

// Host is one discovered IIOD endpoint.
type Host struct {
	Instance  string // advertised name, e.g. "iiod on pluto"
	Hostname  string // DNS hostname, e.g. "pluto.local."
	Addresses []net.IP
	Port      int
	TXT       []string
}

// URI returns the host:port dial target, preferring an IPv4 address over
// the advertised hostname.
func (h Host) URI() string {
	for _, addr := range h.Addresses {
		if v4 := addr.To4(); v4 != nil {
			return fmt.Sprintf("%s:%d", v4, h.Port)
		}
	}
	return fmt.Sprintf("%s:%d", strings.TrimSuffix(h.Hostname, "."), h.Port)
}

// DiscoverIIOD browses for _iio._tcp.local services for one timeout
// window and returns deduplicated host entries.
func DiscoverIIOD(ctx context.Context, timeout time.Duration) ([]Host, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("create mDNS resolver: %w", err)
	}

	browseCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	results := make(map[string]Host)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range entries {
			if e == nil {
				continue
			}
			addrs := make([]net.IP, 0, len(e.AddrIPv4)+len(e.AddrIPv6))
			addrs = append(addrs, e.AddrIPv4...)
			addrs = append(addrs, e.AddrIPv6...)

			key := fmt.Sprintf("%s|%d", e.HostName, e.Port)
			results[key] = Host{
				Instance:  cleanInstance(e.Instance),
				Hostname:  e.HostName,
				Addresses: addrs,
				Port:      e.Port,
				TXT:       append([]string{}, e.Text...),
			}
		}
	}()

	if err := resolver.Browse(browseCtx, iioService, "local.", entries); err != nil {
		return nil, fmt.Errorf("browse %s: %w", iioService, err)
	}
	<-browseCtx.Done()
	<-done

	out := make([]Host, 0, len(results))
	for _, h := range results {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hostname < out[j].Hostname })
	return out, nil
}

// FindFirst browses repeatedly with exponential backoff until at least
// one device answers or ctx expires. Each browse window lasts timeout.
func FindFirst(ctx context.Context, timeout time.Duration) (Host, error) {
	var found Host

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxInterval = 10 * time.Second
	policy.MaxElapsedTime = 0 // run until ctx cancels

	op := func() error {
		hosts, err := DiscoverIIOD(ctx, timeout)
		if err != nil {
			return err
		}
		if len(hosts) == 0 {
			return fmt.Errorf("no %s services answered", iioService)
		}
		found = hosts[0]
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(policy, ctx)); err != nil {
		return Host{}, err
	}
	return found, nil
}

// cleanInstance removes zeroconf escape sequences such as "\ ".
func cleanInstance(s string) string {
	return strings.ReplaceAll(s, `\ `, " ")
}
