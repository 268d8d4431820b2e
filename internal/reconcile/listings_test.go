package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/stx20sync/internal/domain"
)

func listing(id string) domain.Listing {
	return domain.Listing{
		ID:                id,
		Ticker:            "FOO",
		Status:            domain.ListingStatusPending,
		PriceRate:         100,
		PendingPurchaseTx: []string{},
		Revision:          1,
	}
}

func ids(ls []domain.Listing) []string {
	out := make([]string, 0, len(ls))
	for _, l := range ls {
		out = append(out, l.ID)
	}
	return out
}

func TestListingsCreateAndDelete(t *testing.T) {
	remote := []domain.Listing{listing("a"), listing("b")}
	local := []domain.Listing{listing("b"), listing("z"), listing("c")}

	plan := Listings(remote, local)
	assert.Equal(t, []string{"a"}, ids(plan.Create))
	assert.Empty(t, plan.Update)
	assert.Equal(t, []string{"c", "z"}, plan.Delete)
}

func TestListingsIdenticalIsNoop(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	l := listing("a")
	l.LastReincarnate = &ts
	l.PendingPurchaseTx = []string{"0x1"}

	other := l
	sameInstant := ts.In(time.FixedZone("X", 3600))
	other.LastReincarnate = &sameInstant
	// Untracked fields do not trigger a write.
	other.PriceRate = 999
	other.Beneficiary = "SP2"

	plan := Listings([]domain.Listing{other}, []domain.Listing{l})
	assert.Empty(t, plan.Create)
	assert.Empty(t, plan.Update)
	assert.Empty(t, plan.Delete)
}

func TestListingsAnyTrackedFieldTriggersUpdate(t *testing.T) {
	now := time.Now().UTC()
	mutations := map[string]func(*domain.Listing){
		"pending count":   func(l *domain.Listing) { l.PendingPurchaseTx = []string{"0xabc"} },
		"status":          func(l *domain.Listing) { l.Status = domain.ListingStatusSubmitted },
		"stx confirmed":   func(l *domain.Listing) { l.StxSentConfirmed = true },
		"token confirmed": func(l *domain.Listing) { l.TokenSentConfirmed = true },
		"submitted":       func(l *domain.Listing) { l.Submitted = true },
		"buried":          func(l *domain.Listing) { l.IsBuried = true },
		"reincarnated":    func(l *domain.Listing) { l.LastReincarnate = &now },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			remote := listing("a")
			mutate(&remote)

			plan := Listings([]domain.Listing{remote}, []domain.Listing{listing("a")})
			require.Len(t, plan.Update, 1)
			assert.Equal(t, "a", plan.Update[0].ID)
		})
	}
}

// A listing that matches on some tracked fields but differs on others must
// still be updated.
func TestListingsPartialMatchIsUpdated(t *testing.T) {
	stored := listing("a")
	remote := listing("a")
	remote.Status = domain.ListingStatusConfirmed
	remote.StxSentConfirmed = true
	remote.TokenSentConfirmed = true

	plan := Listings([]domain.Listing{remote}, []domain.Listing{stored})
	require.Len(t, plan.Update, 1)
	assert.Equal(t, domain.ListingStatusConfirmed, plan.Update[0].Status)
}

func TestListingsRevisionNeverDecreases(t *testing.T) {
	stored := listing("a")
	stored.Revision = 7
	remote := listing("a")
	remote.Revision = 3
	remote.Submitted = true

	plan := Listings([]domain.Listing{remote}, []domain.Listing{stored})
	require.Len(t, plan.Update, 1)
	assert.Equal(t, int64(7), plan.Update[0].Revision)
}

func TestListingsDuplicateRemoteIDs(t *testing.T) {
	first := listing("a")
	second := listing("a")
	second.PriceRate = 50

	plan := Listings([]domain.Listing{first, second}, nil)
	require.Len(t, plan.Create, 1)
	assert.Equal(t, 50.0, plan.Create[0].PriceRate)
}

func TestListingsSetsAreDisjoint(t *testing.T) {
	changed := listing("b")
	changed.IsBuried = true
	remote := []domain.Listing{listing("a"), changed, listing("c")}
	local := []domain.Listing{listing("b"), listing("c"), listing("d")}

	plan := Listings(remote, local)
	seen := map[string]int{}
	for _, id := range ids(plan.Create) {
		seen[id]++
	}
	for _, id := range ids(plan.Update) {
		seen[id]++
	}
	for _, id := range plan.Delete {
		seen[id]++
	}
	assert.Equal(t, map[string]int{"a": 1, "b": 1, "d": 1}, seen)
}
