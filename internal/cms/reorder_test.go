package cms

import (
	"fmt"
	"math/rand"
	"sort"
	"testing"
)

func scopeOf(orders ...int) []*ContentRecord {
	out := make([]*ContentRecord, len(orders))
	for i, o := range orders {
		out[i] = &ContentRecord{ID: fmt.Sprintf("r%02d", i), DisplayOrder: o}
	}
	return out
}

func apply(scope []*ContentRecord, orders map[string]int) map[string]int {
	out := make(map[string]int, len(scope))
	for _, r := range scope {
		out[r.ID] = r.DisplayOrder
	}
	for id, o := range orders {
		out[id] = o
	}
	return out
}

// visible returns ids in the order readers see them.
func visible(final map[string]int) []string {
	ids := make([]string, 0, len(final))
	for id := range final {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if final[ids[i]] != final[ids[j]] {
			return final[ids[i]] < final[ids[j]]
		}
		return ids[i] < ids[j]
	})
	return ids
}

func TestReorder(t *testing.T) {
	tests := []struct {
		name   string
		orders []int
		id     string
		dir    Direction
		want   []string
	}{
		{name: "move middle up", orders: []int{1, 2, 3}, id: "r01", dir: Up, want: []string{"r01", "r00", "r02"}},
		{name: "move middle down", orders: []int{1, 2, 3}, id: "r01", dir: Down, want: []string{"r00", "r02", "r01"}},
		{name: "first up is no-op", orders: []int{1, 2, 3}, id: "r00", dir: Up, want: nil},
		{name: "last down is no-op", orders: []int{1, 2, 3}, id: "r02", dir: Down, want: nil},
		{name: "sparse orders", orders: []int{10, 20, 30}, id: "r02", dir: Up, want: []string{"r00", "r02", "r01"}},
		{name: "tied orders renumbered", orders: []int{0, 0, 0}, id: "r02", dir: Up, want: []string{"r00", "r02", "r01"}},
		{name: "single record", orders: []int{5}, id: "r00", dir: Down, want: nil},
		{name: "unknown id", orders: []int{1, 2}, id: "nope", dir: Up, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scope := scopeOf(tt.orders...)
			orders := reorder(scope, tt.id, tt.dir)
			if tt.want == nil {
				if len(orders) != 0 {
					t.Errorf("reorder() = %v, want no change", orders)
				}
				return
			}
			got := visible(apply(scopeOf(tt.orders...), orders))
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Errorf("visible order = %v, want %v", got, tt.want)
			}
		})
	}
}

// Any single move permutes the existing display_order values (ties aside)
// and swaps the moved record with exactly one neighbour.
func TestReorder_Permutation(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for iter := 0; iter < 500; iter++ {
		n := 1 + rng.Intn(8)
		orders := rng.Perm(n * 3)[:n]
		scope := scopeOf(orders...)
		id := scope[rng.Intn(n)].ID
		dir := Direction(rng.Intn(2))

		before := visible(apply(scopeOf(orders...), nil))
		after := visible(apply(scopeOf(orders...), reorder(scope, id, dir)))

		beforeVals := append([]int(nil), orders...)
		afterMap := apply(scopeOf(orders...), reorder(scopeOf(orders...), id, dir))
		afterVals := make([]int, 0, n)
		for _, v := range afterMap {
			afterVals = append(afterVals, v)
		}
		sort.Ints(beforeVals)
		sort.Ints(afterVals)
		if fmt.Sprint(beforeVals) != fmt.Sprint(afterVals) {
			t.Fatalf("iteration %d: order values %v became %v", iter, beforeVals, afterVals)
		}

		diff := 0
		for i := range before {
			if before[i] != after[i] {
				diff++
			}
		}
		if diff != 0 && diff != 2 {
			t.Fatalf("iteration %d: %v -> %v changed %d positions", iter, before, after, diff)
		}
	}
}
