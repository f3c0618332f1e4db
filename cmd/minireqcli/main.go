// Command minireqcli is a small demo/debug binary for the minireq library.
// It issues one request with caller-supplied flags and prints status,
// headers, timings, and the body.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/arvidnet/minireq"
	"github.com/arvidnet/minireq/pkg/proxy"
)

func main() {
	method := flag.String("method", "GET", "HTTP method")
	url := flag.String("url", "", "request URL (required)")
	body := flag.String("body", "", "request body")
	timeoutSec := flag.Float64("timeout", 0, "timeout in seconds (0 = no override)")
	maxRedirects := flag.Int("max-redirects", minireq.DefaultMaxRedirects, "max redirects to follow")
	proxyAddr := flag.String("proxy", "", "proxy address, [user:pass@]host[:port]")
	flag.Parse()

	if *url == "" {
		fmt.Fprintln(os.Stderr, "minireqcli: -url is required")
		os.Exit(2)
	}

	req := minireq.NewRequest(minireq.Method(*method), *url).WithMaxRedirects(*maxRedirects)
	if *body != "" {
		req = req.WithBodyString(*body)
	}
	if *timeoutSec > 0 {
		req = req.WithTimeout(*timeoutSec)
	}
	if *proxyAddr != "" {
		p, err := proxy.New(*proxyAddr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "minireqcli: invalid proxy: %v\n", err)
			os.Exit(2)
		}
		req = req.WithProxy(p)
	}

	start := time.Now()
	resp, err := req.Send(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "minireqcli: request failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%d %s\n", resp.StatusCode, resp.ReasonPhrase)
	fmt.Printf("effective url: %s\n", resp.URL.String())
	for name, values := range resp.Headers {
		for _, v := range values {
			fmt.Printf("%s: %s\n", name, v)
		}
	}
	fmt.Println()
	os.Stdout.Write(resp.Body)
	fmt.Printf("\n\n%d bytes in %v (wall %v)\n", len(resp.Body), resp.Timings.TotalTime, time.Since(start))
	fmt.Printf("%d hop(s): connect %v, server %v, network %v\n",
		resp.Timings.Hops, resp.Timings.GetConnectionTime(), resp.Timings.GetServerTime(), resp.Timings.GetNetworkTime())
}
