package search

import (
	"sort"
	"strings"

	"github.com/JoaoSantosCodes/SecureVault/internal/vault"
)

// Hit locates one matching entry. No password material is indexed.
type Hit struct {
	Group    string
	Website  string
	Username string
}

type doc struct {
	hit Hit
	key string
}

// Index is an immutable, in-memory lookup over a vault snapshot.
type Index struct {
	docs []doc
}

// Build indexes the output of vault.AllEntries.
func Build(groups map[string]map[string]vault.Entry) *Index {
	idx := &Index{}
	for g, entries := range groups {
		for site, e := range entries {
			idx.docs = append(idx.docs, doc{
				hit: Hit{Group: g, Website: site, Username: e.Username},
				key: strings.ToLower(site) + "\x00" + strings.ToLower(e.Username),
			})
		}
	}
	sort.Slice(idx.docs, func(i, j int) bool {
		a, b := idx.docs[i].hit, idx.docs[j].hit
		if a.Group != b.Group {
			return a.Group < b.Group
		}
		return a.Website < b.Website
	})
	return idx
}

// Query returns entries whose website or username contains q, ignoring
// case. An empty query matches everything.
func (idx *Index) Query(q string) []Hit {
	q = strings.ToLower(strings.TrimSpace(q))
	var out []Hit
	for _, d := range idx.docs {
		if q == "" || strings.Contains(d.key, q) {
			out = append(out, d.hit)
		}
	}
	return out
}

func (idx *Index) Len() int { return len(idx.docs) }
