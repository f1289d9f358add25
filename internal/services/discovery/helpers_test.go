package discovery

import "github.com/archon-research/oracle-forge/internal/ports/outbound"

func toAdapters(stubs []*stubAdapter) []outbound.FeedAdapter {
	out := make([]outbound.FeedAdapter, len(stubs))
	for i, s := range stubs {
		out[i] = s
	}
	return out
}
