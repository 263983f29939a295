package processing

import (
	"testing"

	"github.com/sjawhar/callscribe/internal/session"
	"github.com/sjawhar/callscribe/internal/summary"
)

func catalogOf(ids ...string) []summary.CatalogEntry {
	out := make([]summary.CatalogEntry, 0, len(ids))
	for _, id := range ids {
		out = append(out, summary.CatalogEntry{PromoID: id})
	}
	return out
}

func recs(ids ...string) session.Promotions {
	p := session.Promotions{}
	for _, id := range ids {
		p.Recommendations = append(p.Recommendations, session.Recommendation{PromoID: session.PromoID(id)})
	}
	return p
}

func TestValidatePromotions(t *testing.T) {
	tests := []struct {
		name       string
		in         session.Promotions
		catalog    []summary.CatalogEntry
		want       []string
		noRelevant bool
	}{
		{
			name:    "drops ids missing from catalog",
			in:      recs("P1", "P3"),
			catalog: catalogOf("P1", "P2"),
			want:    []string{"P1"},
		},
		{
			name:    "caps at two",
			in:      recs("P1", "P2", "P3"),
			catalog: catalogOf("P1", "P2", "P3"),
			want:    []string{"P1", "P2"},
		},
		{
			name:    "repeated id kept once",
			in:      recs("P1", "P1", "P2"),
			catalog: catalogOf("P1", "P2"),
			want:    []string{"P1", "P2"},
		},
		{
			name:    "trims whitespace",
			in:      recs(" P2 "),
			catalog: catalogOf("P2"),
			want:    []string{"P2"},
		},
		{
			name:       "nothing valid sets the flag",
			in:         recs("P9", ""),
			catalog:    catalogOf("P1"),
			want:       []string{},
			noRelevant: true,
		},
		{
			name:       "flag follows the result not the input",
			in:         session.Promotions{Recommendations: []session.Recommendation{{PromoID: "P1"}}, NoRelevant: true},
			catalog:    catalogOf("P1"),
			want:       []string{"P1"},
			noRelevant: false,
		},
		{
			name:       "empty catalog",
			in:         recs("P1"),
			want:       []string{},
			noRelevant: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidatePromotions(tt.in, tt.catalog)
			if got.NoRelevant != tt.noRelevant {
				t.Fatalf("NoRelevant = %v, want %v", got.NoRelevant, tt.noRelevant)
			}
			if got.Recommendations == nil {
				t.Fatal("recommendations must not be nil")
			}
			if len(got.Recommendations) != len(tt.want) {
				t.Fatalf("got %+v, want ids %v", got.Recommendations, tt.want)
			}
			for i, id := range tt.want {
				if string(got.Recommendations[i].PromoID) != id {
					t.Fatalf("recommendation %d = %q, want %q", i, got.Recommendations[i].PromoID, id)
				}
			}
		})
	}
}
