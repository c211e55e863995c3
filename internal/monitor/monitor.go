// Package monitor compares the structured documents of two snapshots and
// reports the options whose odds moved.
//
// Both documents are flattened into "group / market / option" keys. Only
// keys present on both sides are compared; markets that appeared or
// disappeared are counted but not reported as changes. Changes are ranked by
// absolute magnitude, with ties broken by the KL divergence of the move so
// that moves near 0 or 1 rank first.
package monitor

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rewired-gh/polyscribe/internal/logger"
	"github.com/rewired-gh/polyscribe/internal/models"
)

// probEpsilon clamps probabilities away from 0 and 1 to prevent ln(0) in KL divergence.
const probEpsilon = 1e-7

// keySep joins the parts of a flattened option key.
const keySep = " / "

// Monitor detects odds movements between snapshots
type Monitor struct {
	minChange float64
	topK      int
	log       logrus.FieldLogger
}

// New creates a Monitor. Changes smaller than minChange are ignored and at
// most topK are returned; topK <= 0 returns all.
func New(minChange float64, topK int, log logrus.FieldLogger) *Monitor {
	return &Monitor{
		minChange: minChange,
		topK:      topK,
		log:       logger.OrDiscard(log),
	}
}

// quote is one flattened option.
type quote struct {
	group  string
	market string
	option string
	odds   float64
}

// Flatten maps every option in doc to its odds. The first occurrence of a
// key wins when the model repeated a market.
func Flatten(doc *models.Document) map[string]quote {
	out := make(map[string]quote)
	if doc == nil {
		return out
	}
	add := func(group string, m models.MarketEntry) {
		for _, o := range m.Options {
			parts := []string{m.MarketTitle, o.Name}
			if group != "" {
				parts = append([]string{group}, parts...)
			}
			key := strings.Join(parts, keySep)
			if _, exists := out[key]; exists {
				continue
			}
			out[key] = quote{group: group, market: m.MarketTitle, option: o.Name, odds: o.Odds}
		}
	}
	for i := range doc.Markets {
		e := &doc.Markets[i]
		if e.IsGroup() {
			for _, m := range e.Markets {
				add(e.GroupTitle, m)
			}
			continue
		}
		add("", e.MarketEntry)
	}
	return out
}

// DetectChanges returns the option odds that moved by at least minChange
// between prev and curr, largest first, truncated to topK.
func (m *Monitor) DetectChanges(prev, curr *models.Document, now time.Time) []models.Change {
	before := Flatten(prev)
	after := Flatten(curr)

	changes := []models.Change{}
	compared, added, belowFloor := 0, 0, 0
	maxChangeSeen := 0.0

	for key, q := range after {
		old, ok := before[key]
		if !ok {
			added++
			continue
		}
		if !validOdds(old.odds) || !validOdds(q.odds) {
			continue
		}
		compared++

		change := math.Abs(q.odds - old.odds)
		if change > maxChangeSeen {
			maxChangeSeen = change
		}
		if change == 0 {
			continue
		}
		if change < m.minChange {
			belowFloor++
			continue
		}

		direction := "increase"
		if q.odds < old.odds {
			direction = "decrease"
		}

		changes = append(changes, models.Change{
			ID:          uuid.New().String(),
			Key:         key,
			GroupTitle:  q.group,
			MarketTitle: q.market,
			Option:      q.option,
			Magnitude:   change,
			Direction:   direction,
			OldOdds:     old.odds,
			NewOdds:     q.odds,
			DetectedAt:  now,
		})
	}

	removed := 0
	for key := range before {
		if _, ok := after[key]; !ok {
			removed++
		}
	}

	m.log.WithFields(logrus.Fields{
		"compared":    compared,
		"added":       added,
		"removed":     removed,
		"below_floor": belowFloor,
		"max_change":  maxChangeSeen,
	}).Debug("Odds comparison finished")

	rank(changes)
	if m.topK > 0 && len(changes) > m.topK {
		changes = changes[:m.topK]
	}
	return changes
}

// rank sorts by magnitude descending, then KL divergence descending, then key.
func rank(changes []models.Change) {
	sort.Slice(changes, func(i, j int) bool {
		a, b := changes[i], changes[j]
		if a.Magnitude != b.Magnitude {
			return a.Magnitude > b.Magnitude
		}
		ka, kb := KLDivergence(a.OldOdds, a.NewOdds), KLDivergence(b.OldOdds, b.NewOdds)
		if ka != kb {
			return ka > kb
		}
		return a.Key < b.Key
	})
}

// KLDivergence computes KL(pNew || pOld) for a binary (YES/NO) distribution.
// Both probabilities are clamped to [1e-7, 1-1e-7] to avoid ln(0).
// Returns the information gain (in nats) of updating from pOld to pNew.
func KLDivergence(pOld, pNew float64) float64 {
	pOld = math.Max(probEpsilon, math.Min(1-probEpsilon, pOld))
	pNew = math.Max(probEpsilon, math.Min(1-probEpsilon, pNew))
	return pNew*math.Log(pNew/pOld) + (1-pNew)*math.Log((1-pNew)/(1-pOld))
}

func validOdds(p float64) bool {
	return p >= 0 && p <= 1 && !math.IsNaN(p)
}
