package processing

import (
	"strings"

	"github.com/sjawhar/callscribe/internal/session"
	"github.com/sjawhar/callscribe/internal/summary"
)

const maxRecommendations = 2

// ValidatePromotions keeps only recommendations whose promo id is in the
// catalog, each id once, at most two of them. The no-relevant flag is true exactly when
// nothing survives.
func ValidatePromotions(p session.Promotions, catalog []summary.CatalogEntry) session.Promotions {
	allowed := make(map[string]struct{}, len(catalog))
	for _, entry := range catalog {
		allowed[strings.TrimSpace(entry.PromoID)] = struct{}{}
	}

	kept := make([]session.Recommendation, 0, maxRecommendations)
	seen := make(map[string]struct{}, maxRecommendations)
	for _, rec := range p.Recommendations {
		id := strings.TrimSpace(string(rec.PromoID))
		if _, ok := allowed[id]; !ok || id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		rec.PromoID = session.PromoID(id)
		kept = append(kept, rec)
		if len(kept) == maxRecommendations {
			break
		}
	}

	return session.Promotions{
		Recommendations: kept,
		NoRelevant:      len(kept) == 0,
	}
}
