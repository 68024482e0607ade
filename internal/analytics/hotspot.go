package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/geo"
	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/models"
)

const (
	hotspotWeightFrequency = 0.4
	hotspotWeightSeverity  = 0.3
	hotspotWeightRecency   = 0.2
	hotspotWeightDiversity = 0.1

	DefaultHotspotPrecision = 3
	DefaultMinIncidents     = 3
	DefaultHotspotThreshold = 30
)

type HotspotOptions struct {
	Precision    int
	MinIncidents int
	Threshold    float64
	// Since отсекает инциденты старше окна; нулевое значение - без ограничения
	Since time.Time
	Now   time.Time
}

type HotspotComponents struct {
	Frequency float64 `json:"frequency"`
	Severity  float64 `json:"severity"`
	Recency   float64 `json:"recency"`
	Diversity float64 `json:"diversity"`
}

type Hotspot struct {
	Cell          string              `json:"cell"`
	Centroid      geo.Point           `json:"centroid"`
	IncidentCount int                 `json:"incidentCount"`
	DominantType  models.IncidentType `json:"dominantType"`
	Score         float64             `json:"score"`
	Components    HotspotComponents   `json:"components"`
}

type cellStats struct {
	cell     geo.Cell
	count    int
	latSum   float64
	lngSum   float64
	severity float64
	recency  float64
	types    map[models.IncidentType]int
}

// Hotspots группирует инциденты по ячейкам сетки и возвращает ячейки с баллом выше порога,
// упорядоченные по невозрастанию балла: равные баллы допустимы и идут по ключу ячейки.
func Hotspots(incidents []models.Incident, opts HotspotOptions) []Hotspot {
	if opts.MinIncidents < 1 {
		opts.MinIncidents = 1
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	grid := geo.NewGrid(opts.Precision)

	cells := make(map[geo.Cell]*cellStats)
	for _, inc := range incidents {
		if !opts.Since.IsZero() && inc.CreatedAt.Before(opts.Since) {
			continue
		}
		p := geo.Point{Lat: inc.Latitude, Lng: inc.Longitude}
		if p.Validate() != nil {
			continue
		}
		cell := grid.CellOf(p)
		st, ok := cells[cell]
		if !ok {
			st = &cellStats{cell: cell, types: make(map[models.IncidentType]int)}
			cells[cell] = st
		}
		st.count++
		st.latSum += p.Lat
		st.lngSum += p.Lng
		st.severity += inc.Severity.Score()
		st.recency += Decay(inc.CreatedAt, opts.Now) * 100
		st.types[inc.Type]++
	}

	maxCount := 0
	for _, st := range cells {
		if st.count >= opts.MinIncidents && st.count > maxCount {
			maxCount = st.count
		}
	}

	var result []Hotspot
	for _, st := range cells {
		if st.count < opts.MinIncidents {
			continue
		}
		n := float64(st.count)
		c := HotspotComponents{
			Frequency: n / float64(maxCount) * 100,
			Severity:  st.severity / n,
			Recency:   st.recency / n,
			Diversity: typeEntropy(st.types, st.count) * 100,
		}
		score := round2(hotspotWeightFrequency*c.Frequency +
			hotspotWeightSeverity*c.Severity +
			hotspotWeightRecency*c.Recency +
			hotspotWeightDiversity*c.Diversity)
		if score <= opts.Threshold {
			continue
		}
		result = append(result, Hotspot{
			Cell:          st.cell.String(),
			Centroid:      geo.Point{Lat: st.latSum / n, Lng: st.lngSum / n},
			IncidentCount: st.count,
			DominantType:  dominantType(st.types),
			Score:         score,
			Components: HotspotComponents{
				Frequency: round2(c.Frequency),
				Severity:  round2(c.Severity),
				Recency:   round2(c.Recency),
				Diversity: round2(c.Diversity),
			},
		})
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Score != result[j].Score {
			return result[i].Score > result[j].Score
		}
		return result[i].Cell < result[j].Cell
	})
	return result
}

// typeEntropy - энтропия Шеннона по типам, нормированная на ln(число категорий)
func typeEntropy(types map[models.IncidentType]int, total int) float64 {
	if total == 0 || len(types) < 2 {
		return 0
	}
	var h float64
	for _, n := range types {
		p := float64(n) / float64(total)
		h -= p * math.Log(p)
	}
	return math.Min(1, h/math.Log(float64(len(models.AllIncidentTypes))))
}

func dominantType(types map[models.IncidentType]int) models.IncidentType {
	var (
		best  models.IncidentType
		count int
	)
	for _, t := range models.AllIncidentTypes {
		if types[t] > count {
			best, count = t, types[t]
		}
	}
	if best == "" {
		// неизвестные категории из хранилища
		for t, n := range types {
			if n > count || (n == count && t < best) {
				best, count = t, n
			}
		}
	}
	return best
}
