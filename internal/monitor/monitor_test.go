package monitor

import (
	"math"
	"testing"
	"time"

	"github.com/rewired-gh/polyscribe/internal/models"
)

func binary(title string, yes float64) models.MarketEntry {
	return models.MarketEntry{
		MarketTitle: title,
		MarketType:  models.MarketTypeBinary,
		Options:     []models.Option{{Name: "Yes", Odds: yes}, {Name: "No", Odds: 1 - yes}},
	}
}

func standalone(m models.MarketEntry) models.Entry {
	return models.Entry{MarketEntry: m}
}

func group(title string, markets ...models.MarketEntry) models.Entry {
	return models.Entry{GroupTitle: title, Markets: markets}
}

func TestDetectChanges(t *testing.T) {
	prev := &models.Document{Markets: []models.Entry{
		group("NYC Mayoral Election", binary("Will Mamdani win?", 0.60), binary("Will Cuomo win?", 0.30)),
		standalone(binary("Fed cut in September?", 0.80)),
	}}
	curr := &models.Document{Markets: []models.Entry{
		group("NYC Mayoral Election", binary("Will Mamdani win?", 0.81), binary("Will Cuomo win?", 0.30)),
		standalone(binary("Fed cut in September?", 0.75)),
	}}

	now := time.Now()
	m := New(0.01, 10, nil)
	changes := m.DetectChanges(prev, curr, now)

	// Mamdani Yes/No moved 0.21, Fed Yes/No moved 0.05, Cuomo unchanged
	if len(changes) != 4 {
		t.Fatalf("Expected 4 changes, got %d: %+v", len(changes), changes)
	}

	top := changes[0]
	if top.GroupTitle != "NYC Mayoral Election" || top.MarketTitle != "Will Mamdani win?" {
		t.Errorf("Unexpected top change: %+v", top)
	}
	if math.Abs(top.Magnitude-0.21) > 1e-9 {
		t.Errorf("Expected magnitude 0.21, got %f", top.Magnitude)
	}

	for _, c := range changes {
		if err := c.Validate(); err != nil {
			t.Errorf("Change %s should validate: %v", c.Key, err)
		}
		if !c.DetectedAt.Equal(now) {
			t.Errorf("DetectedAt not propagated for %s", c.Key)
		}
	}

	fed := changes[2]
	if fed.GroupTitle != "" || fed.MarketTitle != "Fed cut in September?" {
		t.Errorf("Unexpected third change: %+v", fed)
	}
	if fed.Key != "Fed cut in September? / No" && fed.Key != "Fed cut in September? / Yes" {
		t.Errorf("Unexpected standalone key %q", fed.Key)
	}
}

func TestDetectChanges_Direction(t *testing.T) {
	prev := &models.Document{Markets: []models.Entry{standalone(binary("Q", 0.40))}}
	curr := &models.Document{Markets: []models.Entry{standalone(binary("Q", 0.55))}}

	changes := New(0.01, 10, nil).DetectChanges(prev, curr, time.Now())
	byOption := map[string]models.Change{}
	for _, c := range changes {
		byOption[c.Option] = c
	}
	if byOption["Yes"].Direction != "increase" {
		t.Errorf("Expected Yes to increase, got %s", byOption["Yes"].Direction)
	}
	if byOption["No"].Direction != "decrease" {
		t.Errorf("Expected No to decrease, got %s", byOption["No"].Direction)
	}
}

func TestDetectChanges_MinChangeAndTopK(t *testing.T) {
	prev := &models.Document{Markets: []models.Entry{
		standalone(models.MarketEntry{MarketTitle: "A", MarketType: models.MarketTypeMultiOption, Options: []models.Option{
			{Name: "x", Odds: 0.10}, {Name: "y", Odds: 0.20}, {Name: "z", Odds: 0.30}, {Name: "w", Odds: 0.40},
		}}),
	}}
	curr := &models.Document{Markets: []models.Entry{
		standalone(models.MarketEntry{MarketTitle: "A", MarketType: models.MarketTypeMultiOption, Options: []models.Option{
			{Name: "x", Odds: 0.105}, {Name: "y", Odds: 0.25}, {Name: "z", Odds: 0.40}, {Name: "w", Odds: 0.70},
		}}),
	}}

	changes := New(0.01, 2, nil).DetectChanges(prev, curr, time.Now())
	if len(changes) != 2 {
		t.Fatalf("Expected top 2 changes, got %d", len(changes))
	}
	if changes[0].Option != "w" || changes[1].Option != "z" {
		t.Errorf("Unexpected order: %s, %s", changes[0].Option, changes[1].Option)
	}

	all := New(0.01, 0, nil).DetectChanges(prev, curr, time.Now())
	if len(all) != 3 {
		t.Errorf("Expected 3 changes above floor, got %d", len(all))
	}
}

func TestDetectChanges_AddedAndRemovedMarketsIgnored(t *testing.T) {
	prev := &models.Document{Markets: []models.Entry{standalone(binary("Old", 0.5))}}
	curr := &models.Document{Markets: []models.Entry{standalone(binary("New", 0.9))}}

	changes := New(0.01, 10, nil).DetectChanges(prev, curr, time.Now())
	if len(changes) != 0 {
		t.Errorf("Expected no changes, got %+v", changes)
	}
}

func TestDetectChanges_NilDocuments(t *testing.T) {
	changes := New(0.01, 10, nil).DetectChanges(nil, nil, time.Now())
	if changes == nil || len(changes) != 0 {
		t.Errorf("Expected empty non-nil slice, got %v", changes)
	}
}

func TestRank_TieBrokenByInformation(t *testing.T) {
	changes := []models.Change{
		{Key: "b", Magnitude: 0.05, OldOdds: 0.50, NewOdds: 0.55},
		{Key: "a", Magnitude: 0.05, OldOdds: 0.50, NewOdds: 0.55},
		{Key: "tail", Magnitude: 0.05, OldOdds: 0.02, NewOdds: 0.07},
		{Key: "big", Magnitude: 0.20, OldOdds: 0.40, NewOdds: 0.60},
	}
	rank(changes)

	want := []string{"big", "tail", "a", "b"}
	for i, key := range want {
		if changes[i].Key != key {
			t.Errorf("position %d: expected %s, got %s", i, key, changes[i].Key)
		}
	}
}

func TestFlatten_DuplicatesKeepFirst(t *testing.T) {
	doc := &models.Document{Markets: []models.Entry{
		standalone(binary("Q", 0.3)),
		standalone(binary("Q", 0.9)),
		group("G", binary("Q", 0.5)),
	}}
	flat := Flatten(doc)
	if len(flat) != 4 {
		t.Fatalf("Expected 4 keys, got %d", len(flat))
	}
	if flat["Q / Yes"].odds != 0.3 {
		t.Errorf("Expected first occurrence to win, got %f", flat["Q / Yes"].odds)
	}
	if flat["G / Q / Yes"].odds != 0.5 {
		t.Errorf("Group key missing or wrong: %+v", flat["G / Q / Yes"])
	}
}

func TestKLDivergence(t *testing.T) {
	if kl := KLDivergence(0.5, 0.5); math.Abs(kl) > 1e-12 {
		t.Errorf("KL of identical distributions should be 0, got %f", kl)
	}
	if KLDivergence(0.02, 0.07) <= KLDivergence(0.50, 0.55) {
		t.Error("Tail move should carry more information than a mid-range move")
	}
	if kl := KLDivergence(0, 1); math.IsInf(kl, 0) || math.IsNaN(kl) {
		t.Errorf("Clamping should keep KL finite, got %f", kl)
	}
}
