package watchlist

import (
	"encoding/json"
	"fmt"
	"strings"

	"marketdesk/internal/domain"
)

// collectionVersion tags the on-disk schema of the watchlist collection.
const collectionVersion = 1

// collectionEnvelope is the versioned on-disk format.
type collectionEnvelope struct {
	Version int                 `json:"version"`
	Lists   map[string][]string `json:"lists"`
}

// decodeCollection parses persisted watchlist data, upgrading the legacy
// single-list format (a bare JSON array of symbols) into the versioned
// multi-list envelope. The migrated flag tells the caller to re-persist.
func decodeCollection(data []byte) (map[string][]string, bool, error) {
	var env collectionEnvelope
	if err := json.Unmarshal(data, &env); err == nil && env.Version >= 1 {
		if env.Lists == nil {
			env.Lists = make(map[string][]string)
		}
		normalizeCollection(env.Lists)
		return env.Lists, false, nil
	}

	// Legacy format: one unnamed list stored as a plain symbol array.
	var legacy []string
	if err := json.Unmarshal(data, &legacy); err == nil {
		lists := map[string][]string{domain.DefaultList: legacy}
		normalizeCollection(lists)
		return lists, true, nil
	}

	return nil, false, fmt.Errorf("unrecognized watchlist format")
}

// normalizeCollection uppercases symbols and drops duplicates and the
// reserved portfolio name, keeping first-seen order within each list.
func normalizeCollection(lists map[string][]string) {
	delete(lists, domain.PortfolioList)
	for name, symbols := range lists {
		seen := make(map[string]struct{}, len(symbols))
		out := symbols[:0]
		for _, sym := range symbols {
			sym = domain.NormalizeSymbol(sym)
			if sym == "" {
				continue
			}
			if _, dup := seen[sym]; dup {
				continue
			}
			seen[sym] = struct{}{}
			out = append(out, sym)
		}
		lists[name] = out
	}
}

func trimName(name string) string {
	return strings.TrimSpace(name)
}
