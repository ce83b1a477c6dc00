// Command discover browses the local network for IIOD services over
// mDNS and prints the endpoints found.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sdrlab/txwave/internal/mdns"
)

func main() {
	timeout := flag.Duration("timeout", 5*time.Second, "browse window")
	flag.Parse()

	fmt.Printf("browsing _iio._tcp.local for %s\n", *timeout)

	start := time.Now()
	hosts, err := mdns.DiscoverIIOD(context.Background(), *timeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "discovery failed: %v\n", err)
		os.Exit(1)
	}
	elapsed := time.Since(start).Truncate(time.Millisecond)

	if len(hosts) == 0 {
		fmt.Printf("no devices found (%s)\n", elapsed)
		return
	}

	fmt.Printf("found %d device(s) in %s\n", len(hosts), elapsed)
	for _, h := range hosts {
		fmt.Printf("  %-30s %s\n", h.Instance, h.URI())
		fmt.Printf("    hostname: %s port: %d\n", h.Hostname, h.Port)
		for _, ip := range h.Addresses {
			fmt.Printf("    addr: %s\n", ip)
		}
		for _, txt := range h.TXT {
			fmt.Printf("    txt: %s\n", txt)
		}
	}
}
