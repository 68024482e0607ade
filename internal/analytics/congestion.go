package analytics

import (
	"math"
	"time"

	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/geo"
	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/models"
)

const (
	congestionWeightDensity  = 0.30
	congestionWeightSeverity = 0.35
	congestionWeightRecency  = 0.20
	congestionWeightTraffic  = 0.15

	// decayPerHour - коэффициент k в e^(-k*age)
	decayPerHour = 0.1

	// densitySaturationPerKm2 - плотность, при которой компонента достигает 100
	densitySaturationPerKm2 = 0.5
)

// Congestion label thresholds, highest first.
var congestionLevels = []struct {
	min   float64
	label string
	color string
}{
	{80, "Severe", "#d32f2f"},
	{60, "Heavy", "#f57c00"},
	{40, "Moderate", "#fbc02d"},
	{20, "Light", "#7cb342"},
	{0, "Clear", "#388e3c"},
}

type CongestionComponents struct {
	Density      float64 `json:"density"`
	Severity     float64 `json:"severity"`
	Recency      float64 `json:"recency"`
	TrafficRatio float64 `json:"trafficRatio"`
}

type CongestionResult struct {
	Center        geo.Point            `json:"center"`
	RadiusKm      float64              `json:"radiusKm"`
	Score         float64              `json:"score"`
	Label         string               `json:"label"`
	Color         string               `json:"color"`
	IncidentCount int                  `json:"incidentCount"`
	Components    CongestionComponents `json:"components"`
}

// Congestion считает индекс загруженности 0..100 по инцидентам в радиусе от точки.
// Инциденты вне радиуса не учитываются.
func Congestion(incidents []models.Incident, center geo.Point, radiusKm float64, now time.Time) (CongestionResult, error) {
	sub := geo.Subscription{Center: center, RadiusKm: radiusKm}
	if err := sub.Validate(); err != nil {
		return CongestionResult{}, err
	}

	var (
		count    int
		severity float64
		recency  float64
		traffic  int
	)
	for _, inc := range incidents {
		if !sub.Contains(geo.Point{Lat: inc.Latitude, Lng: inc.Longitude}) {
			continue
		}
		count++
		severity += inc.Severity.Score()
		recency += Decay(inc.CreatedAt, now) * 100
		if inc.Type.TrafficRelated() {
			traffic++
		}
	}

	result := CongestionResult{Center: center, RadiusKm: radiusKm, IncidentCount: count}
	if count > 0 {
		area := math.Pi * radiusKm * radiusKm
		n := float64(count)
		result.Components = CongestionComponents{
			Density:      math.Min(100, (n/area)/densitySaturationPerKm2*100),
			Severity:     severity / n,
			Recency:      recency / n,
			TrafficRatio: float64(traffic) / n * 100,
		}
	}

	c := result.Components
	result.Score = round2(congestionWeightDensity*c.Density +
		congestionWeightSeverity*c.Severity +
		congestionWeightRecency*c.Recency +
		congestionWeightTraffic*c.TrafficRatio)
	result.Label, result.Color = CongestionLabel(result.Score)
	result.Components = CongestionComponents{
		Density:      round2(c.Density),
		Severity:     round2(c.Severity),
		Recency:      round2(c.Recency),
		TrafficRatio: round2(c.TrafficRatio),
	}
	return result, nil
}

// CongestionLabel возвращает подпись и цвет для значения индекса
func CongestionLabel(score float64) (string, string) {
	for _, lvl := range congestionLevels {
		if score >= lvl.min {
			return lvl.label, lvl.color
		}
	}
	last := congestionLevels[len(congestionLevels)-1]
	return last.label, last.color
}

// Decay - вес e^(-0.1*ageHours); инциденты из будущего считаются свежими
func Decay(createdAt, now time.Time) float64 {
	hours := now.Sub(createdAt).Hours()
	if hours < 0 {
		hours = 0
	}
	return math.Exp(-decayPerHour * hours)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
