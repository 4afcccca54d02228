package tool

import (
	"fmt"
	"net/url"
	"time"

	probing "github.com/prometheus-community/pro-bing"
)

// ProbeBackend pings the upload endpoint host and returns the average RTT.
// Used by the admin console to show backend reachability before a batch starts.
func ProbeBackend(endpoint string, timeout time.Duration) (time.Duration, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return 0, fmt.Errorf("failed to parse endpoint URL: %v", err)
	}
	host := u.Hostname()
	if host == "" {
		return 0, fmt.Errorf("endpoint URL has no host: %s", endpoint)
	}

	pinger, err := probing.NewPinger(host)
	if err != nil {
		return 0, fmt.Errorf("failed to create pinger: %v", err)
	}
	pinger.Count = 1
	pinger.Timeout = timeout
	// unprivileged UDP ping so the sidecar does not need CAP_NET_RAW
	pinger.SetPrivileged(false)

	if err := pinger.Run(); err != nil {
		return 0, fmt.Errorf("ping failed: %v", err)
	}
	stats := pinger.Statistics()
	if stats.PacketsRecv == 0 {
		return 0, fmt.Errorf("backend host %s did not answer within %s", host, timeout)
	}
	return stats.AvgRtt, nil
}
