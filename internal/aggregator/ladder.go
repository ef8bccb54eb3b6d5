package aggregator

import (
	"github.com/google/btree"

	"aggticker/internal/models"
)

const treeDegree = 8

type rankedLevel struct {
	level models.QuoteLevel
	seq   int
}

// ladder keeps quote levels ranked by price. Levels with equal prices keep the order in
// which they were added so the provider's ordering breaks ties.
type ladder struct {
	tree *btree.BTreeG[rankedLevel]
	next int
}

func newBidLadder() *ladder {
	return newLadder(func(a, b rankedLevel) bool {
		if a.level.Price != b.level.Price {
			return a.level.Price > b.level.Price
		}
		return a.seq < b.seq
	})
}

func newAskLadder() *ladder {
	return newLadder(func(a, b rankedLevel) bool {
		if a.level.Price != b.level.Price {
			return a.level.Price < b.level.Price
		}
		return a.seq < b.seq
	})
}

func newLadder(less btree.LessFunc[rankedLevel]) *ladder {
	return &ladder{tree: btree.NewG(treeDegree, less)}
}

func (l *ladder) add(level models.QuoteLevel) {
	l.tree.ReplaceOrInsert(rankedLevel{level: level, seq: l.next})
	l.next++
}

// top returns at most depth levels, best first. The result is never nil.
func (l *ladder) top(depth int) []models.QuoteLevel {
	n := l.tree.Len()
	if n > depth {
		n = depth
	}
	out := make([]models.QuoteLevel, 0, n)
	l.tree.Ascend(func(item rankedLevel) bool {
		if len(out) == depth {
			return false
		}
		out = append(out, item.level)
		return true
	})
	return out
}
