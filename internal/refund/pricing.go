package refund

import (
	"context"

	campaigndomain "github.com/adlift/trafficd/internal/campaign/domain"
	"github.com/adlift/trafficd/internal/setting"
)

// UnitPrices holds the per-traffic-unit prices used to value completed
// work. Missing settings fall back to 1 so a bare installation still
// computes something sane.
type UnitPrices struct {
	Standard float64
	Video    float64
}

const defaultUnitPrice = 1

func loadUnitPrices(ctx context.Context, store *setting.Store, standardKey, videoKey string) (UnitPrices, error) {
	standard, err := store.Float(ctx, standardKey, defaultUnitPrice)
	if err != nil {
		return UnitPrices{}, err
	}
	video, err := store.Float(ctx, videoKey, defaultUnitPrice)
	if err != nil {
		return UnitPrices{}, err
	}
	return UnitPrices{Standard: standard, Video: video}, nil
}

// CompletedKeywordCost values the traffic a keyword actually delivered.
// Video keywords are priced per view; standard keywords are priced per
// visit weighted by the required time on site.
func (p UnitPrices) CompletedKeywordCost(kw campaigndomain.Keyword, traffic int64) float64 {
	if kw.Type == campaigndomain.KeywordVideo {
		return float64(traffic) * p.Video
	}
	return float64(traffic) * float64(kw.TimeOnSite) * p.Standard
}
