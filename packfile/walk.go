package packfile

import (
	"sort"

	"github.com/puregit/git/oid"
)

// Walk calls f once for every object id recorded in the pack's
// index, in the index's sorted-hash order.
func (pck *Pack) Walk(f OidWalkFunc) error {
	if err := pck.idx.parse(); err != nil {
		return err
	}
	ids := make([]oid.Oid, 0, len(pck.idx.offsets))
	for id := range pck.idx.offsets {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Compare(ids[j]) < 0 })
	for _, id := range ids {
		if err := f(id); err != nil {
			return err
		}
	}
	return nil
}
