// Package sponsored mixes paid placements into organic listings and keeps
// the impression and click bookkeeping for them.
package sponsored

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/toko-marketplace/internal/store"
)

// MaxRatio caps the share of a page that may be sponsored.
const MaxRatio = 0.5

// StatusApproved is the only placement status eligible for serving.
const StatusApproved = "approved"

// Candidate is a placement joined with the product it promotes.
type Candidate struct {
	Placement store.Placement
	Product   store.Product
}

// Targeted reports whether the placement is bound to a category.
func (c Candidate) Targeted() bool {
	return c.Placement.TargetCategorySlug != nil
}

// Entry is one listing slot. PlacementID is uuid.Nil for organic entries.
type Entry struct {
	Product     store.Product
	PlacementID uuid.UUID
	Targeted    bool
}

// Sponsored reports whether the entry was filled by a placement.
func (e Entry) Sponsored() bool {
	return e.PlacementID != uuid.Nil
}

// Options controls a blend.
type Options struct {
	Ratio          float64
	Limit          int
	CategoryScoped bool
	Search         bool
}

func clampRatio(ratio float64) float64 {
	if math.IsNaN(ratio) || ratio < 0 {
		return 0
	}
	if ratio > MaxRatio {
		return MaxRatio
	}
	return ratio
}

// TargetCount is the number of sponsored slots on a page of limit entries.
func TargetCount(limit int, ratio float64) int {
	if limit <= 0 {
		return 0
	}
	return int(math.Floor(float64(limit) * clampRatio(ratio)))
}

// SlotPeriod is the spacing between sponsored slots. Zero means no slots.
func SlotPeriod(ratio float64) int {
	r := clampRatio(ratio)
	if r == 0 {
		return 0
	}
	p := int(math.Round(1 / r))
	if p < 2 {
		p = 2
	}
	return p
}

// SelectCandidates orders the eligible placements for a listing: targeted
// before general, each by priority then recency, one placement per product.
// match applies the organic listing filter to the promoted product.
func SelectCandidates(targeted, general []Candidate, now time.Time, match func(store.Product) bool) []Candidate {
	ordered := append(eligible(targeted, now), eligible(general, now)...)
	seen := make(map[uuid.UUID]struct{}, len(ordered))
	out := make([]Candidate, 0, len(ordered))
	for _, c := range ordered {
		if _, dup := seen[c.Product.ID]; dup {
			continue
		}
		seen[c.Product.ID] = struct{}{}
		if c.Product.Status != "active" {
			continue
		}
		if match != nil && !match(c.Product) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func eligible(in []Candidate, now time.Time) []Candidate {
	out := make([]Candidate, 0, len(in))
	for _, c := range in {
		p := c.Placement
		if p.Status != StatusApproved {
			continue
		}
		if p.StartAt != nil && now.Before(*p.StartAt) {
			continue
		}
		if p.EndAt != nil && now.After(*p.EndAt) {
			continue
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Placement, out[j].Placement
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
	return out
}

// Entries converts selected candidates into sponsored listing entries.
func Entries(cands []Candidate) []Entry {
	out := make([]Entry, 0, len(cands))
	for _, c := range cands {
		out = append(out, Entry{Product: c.Product, PlacementID: c.Placement.ID, Targeted: c.Targeted()})
	}
	return out
}

// Organic wraps products as organic entries.
func Organic(products []store.Product) []Entry {
	out := make([]Entry, 0, len(products))
	for _, p := range products {
		out = append(out, Entry{Product: p})
	}
	return out
}

// Blend interleaves sponsored entries into the organic page. Every
// SlotPeriod-th slot (1-based) is sponsored; a targeted entry leads
// category-scoped pages. Organic duplicates of shown sponsored products are
// dropped, and when either list runs out the other fills the page.
func Blend(organic, sponsored []Entry, opts Options) []Entry {
	if opts.Limit <= 0 {
		return []Entry{}
	}
	ratio := opts.Ratio
	if opts.Search {
		ratio = 0
	}
	if n := TargetCount(opts.Limit, ratio); len(sponsored) > n {
		sponsored = sponsored[:n]
	}

	shown := make(map[uuid.UUID]struct{}, len(sponsored))
	for _, e := range sponsored {
		shown[e.Product.ID] = struct{}{}
	}
	rest := make([]Entry, 0, len(organic))
	for _, e := range organic {
		if _, dup := shown[e.Product.ID]; !dup {
			rest = append(rest, e)
		}
	}

	out := make([]Entry, 0, opts.Limit)
	if opts.CategoryScoped && len(sponsored) > 0 && sponsored[0].Targeted {
		out = append(out, sponsored[0])
		sponsored = sponsored[1:]
	}
	period := SlotPeriod(ratio)
	for len(out) < opts.Limit && (len(sponsored) > 0 || len(rest) > 0) {
		slot := len(out) + 1
		takeSponsored := len(sponsored) > 0 && (len(rest) == 0 || (period > 0 && slot%period == 0))
		if takeSponsored {
			out = append(out, sponsored[0])
			sponsored = sponsored[1:]
			continue
		}
		out = append(out, rest[0])
		rest = rest[1:]
	}
	return out
}
