package analytics

import (
	"context"
	"fmt"

	"github.com/vahanmetrics/vahan/pkg/growth"
)

// Insight is one data-backed observation about the market.
type Insight struct {
	Kind  string   `json:"kind"`
	Text  string   `json:"text"`
	Value *float64 `json:"value"`
}

const (
	// InsightMarketGrowth reports the average annual YoY growth rate.
	InsightMarketGrowth = "market_growth"
	// InsightConcentration reports the top-5 manufacturers' combined share.
	InsightConcentration = "concentration"
	// InsightLatestGrowth reports the most recent full-year growth.
	InsightLatestGrowth = "latest_growth"
	// InsightTrending names the fastest-growing manufacturer.
	InsightTrending = "trending"
)

// concentrationN is how many leading manufacturers the concentration
// insight aggregates.
const concentrationN = 5

// Insights derives investor-facing observations from the current dataset.
// Insights whose inputs are undefined (single year of data, zero baselines)
// are omitted rather than reported with null values.
func (s *Service) Insights(ctx context.Context) ([]Insight, error) {
	ds, err := s.dataset(ctx)
	if err != nil {
		return nil, err
	}
	return memoized(s, ds.Revision()+"|insights", func() ([]Insight, error) {
		var insights []Insight

		yearly, err := s.YearlyTrend(ctx)
		if err != nil {
			return nil, err
		}

		var total float64
		var n int
		for _, pt := range yearly {
			if pt.YoYPercent == nil {
				continue
			}
			total += *pt.YoYPercent
			n++
		}
		if n > 0 {
			avg := total / float64(n)
			insights = append(insights, Insight{
				Kind:  InsightMarketGrowth,
				Text:  fmt.Sprintf("average annual growth of %.1f%% across the dataset window", avg),
				Value: &avg,
			})
		}

		share := growth.TopShareConcentration(ds, concentrationN)
		if share > 0 {
			v := share
			insights = append(insights, Insight{
				Kind:  InsightConcentration,
				Text:  fmt.Sprintf("top 5 manufacturers hold %.1f%% of total registrations", v),
				Value: &v,
			})
		}

		if len(yearly) > 0 {
			if latest := yearly[len(yearly)-1].YoYPercent; latest != nil {
				v := *latest
				insights = append(insights, Insight{
					Kind:  InsightLatestGrowth,
					Text:  fmt.Sprintf("latest full year grew %.1f%% over the prior year", v),
					Value: &v,
				})
			}
		}

		trending, err := s.TrendingManufacturers(ctx, 1)
		if err != nil {
			return nil, err
		}
		if len(trending) == 1 && trending[0].AverageYoY != nil {
			v := *trending[0].AverageYoY
			insights = append(insights, Insight{
				Kind:  InsightTrending,
				Text:  trending[0].Manufacturer + fmt.Sprintf(" leads growth with %.1f%% average YoY", v),
				Value: &v,
			})
		}

		return insights, nil
	})
}
