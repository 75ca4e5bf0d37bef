package normalize

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opsforge/buildingcompliance/pkg/compliance/model"
)

func issue(id, nativeID string, category model.Category, issued time.Time) model.Issue {
	return model.Issue{
		ID:         id,
		Category:   category,
		IssuedDate: issued,
		SourceRef:  model.SourceRef{NativeID: nativeID},
	}
}

func TestMergeDeduplicatesByCategoryAndNativeID(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	a := issue("hpd-1", "100", model.CategoryHousing, base)
	dup := issue("hpd-1", "100", model.CategoryHousing, base)
	sameIDOtherCategory := issue("dob-1", "100", model.CategoryPermit, base.AddDate(0, 0, 1))

	out := Merge([]model.Issue{a}, []model.Issue{dup, sameIDOtherCategory})
	require.Len(t, out, 2, "same native ID in different categories is not a duplicate")
}

func TestMergeIdempotent(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	set := []model.Issue{
		issue("hpd-1", "100", model.CategoryHousing, base),
		issue("dsny-1", "200", model.CategorySanitation, base.AddDate(0, 0, 3)),
	}
	once := Merge(set)
	twice := Merge(once)
	require.Equal(t, once, twice)
}

func TestMergeOrderInvariant(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	issues := []model.Issue{
		issue("hpd-1", "100", model.CategoryHousing, base),
		issue("hpd-2", "101", model.CategoryHousing, base.AddDate(0, 0, 5)),
		issue("dob-1", "300", model.CategoryPermit, base.AddDate(0, 0, 2)),
		issue("ll97-1", "400", model.CategoryEmissions, base.AddDate(0, 0, 5)),
	}

	want := Merge(issues)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		shuffled := make([]model.Issue, len(issues))
		copy(shuffled, issues)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		require.Equal(t, want, Merge(shuffled))
	}
}

func TestSortOrdering(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	issues := []model.Issue{
		issue("b", "1", model.CategoryHousing, base),
		issue("a", "2", model.CategoryHousing, base),
		issue("c", "3", model.CategoryHousing, base.AddDate(0, 0, 10)),
	}
	Sort(issues)

	require.Equal(t, "c", issues[0].ID, "newest first")
	require.Equal(t, "a", issues[1].ID, "date ties break by ID ascending")
	require.Equal(t, "b", issues[2].ID)
}

func TestMergeEmpty(t *testing.T) {
	require.Empty(t, Merge())
	require.Empty(t, Merge(nil, nil))
}
