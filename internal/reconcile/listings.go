// Package reconcile diffs remote STX20 snapshots against locally stored
// state and decides which rows to create, update and delete.
package reconcile

import (
	"sort"
	"time"

	"github.com/alanyoungcy/stx20sync/internal/domain"
)

// ListingPlan is the minimal set of writes that brings local listings in
// line with a remote snapshot. The three sets are disjoint.
type ListingPlan struct {
	Create []domain.Listing
	Update []domain.Listing
	Delete []string
}

// Listings diffs remote listings against local ones. The remote side is
// authoritative for existence: local ids missing remotely are deleted.
// A listing present on both sides is updated when any tracked field
// differs, and skipped only when all of them match. Updates never lower the
// stored revision.
func Listings(remote, local []domain.Listing) ListingPlan {
	remote = dedupListings(remote)

	localByID := make(map[string]domain.Listing, len(local))
	for _, l := range local {
		localByID[l.ID] = l
	}

	var plan ListingPlan
	remoteIDs := make(map[string]struct{}, len(remote))
	for _, r := range remote {
		remoteIDs[r.ID] = struct{}{}

		stored, ok := localByID[r.ID]
		if !ok {
			plan.Create = append(plan.Create, r)
			continue
		}
		if !NeedsUpdate(stored, r) {
			continue
		}
		if stored.Revision > r.Revision {
			r.Revision = stored.Revision
		}
		plan.Update = append(plan.Update, r)
	}

	for id := range localByID {
		if _, ok := remoteIDs[id]; !ok {
			plan.Delete = append(plan.Delete, id)
		}
	}
	sort.Strings(plan.Delete)

	return plan
}

// NeedsUpdate reports whether any tracked field of the remote listing
// differs from the stored one.
func NeedsUpdate(stored, remote domain.Listing) bool {
	return len(stored.PendingPurchaseTx) != len(remote.PendingPurchaseTx) ||
		stored.Status != remote.Status ||
		stored.StxSentConfirmed != remote.StxSentConfirmed ||
		stored.TokenSentConfirmed != remote.TokenSentConfirmed ||
		stored.Submitted != remote.Submitted ||
		stored.IsBuried != remote.IsBuried ||
		!sameTime(stored.LastReincarnate, remote.LastReincarnate)
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// dedupListings keeps the last occurrence of every id, in first-seen order.
func dedupListings(in []domain.Listing) []domain.Listing {
	idx := make(map[string]int, len(in))
	out := make([]domain.Listing, 0, len(in))
	for _, l := range in {
		if i, ok := idx[l.ID]; ok {
			out[i] = l
			continue
		}
		idx[l.ID] = len(out)
		out = append(out, l)
	}
	return out
}
