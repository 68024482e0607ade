package analytics

import (
	"math"
	"time"

	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/models"
)

// Периоды суток
const (
	PeriodMorning   = "morning"
	PeriodAfternoon = "afternoon"
	PeriodEvening   = "evening"
	PeriodNight     = "night"
	PeriodNone      = "none"
)

type HourBucket struct {
	Hour   int     `json:"hour"`
	Count  int     `json:"count"`
	Weight float64 `json:"weight"`
}

type PeakHours struct {
	Histogram      []HourBucket `json:"histogram"`
	PeakHour       int          `json:"peakHour"`
	QuietestHour   int          `json:"quietestHour"`
	PeakPeriod     string       `json:"peakPeriod"`
	TotalIncidents int          `json:"totalIncidents"`
}

// PeakHourAnalysis строит гистограмму по часу суток с затуханием по давности.
// Часы берутся в loc (UTC, если nil). Без инцидентов PeakHour и QuietestHour равны -1.
func PeakHourAnalysis(incidents []models.Incident, now time.Time, loc *time.Location) PeakHours {
	if loc == nil {
		loc = time.UTC
	}

	result := PeakHours{Histogram: make([]HourBucket, 24), PeakHour: -1, QuietestHour: -1, PeakPeriod: PeriodNone}
	for h := range result.Histogram {
		result.Histogram[h].Hour = h
	}

	weights := make([]float64, 24)
	for _, inc := range incidents {
		h := inc.CreatedAt.In(loc).Hour()
		result.Histogram[h].Count++
		weights[h] += Decay(inc.CreatedAt, now)
		result.TotalIncidents++
	}
	if result.TotalIncidents == 0 {
		return result
	}

	result.PeakHour, result.QuietestHour = 0, 0
	for h := 1; h < 24; h++ {
		if weights[h] > weights[result.PeakHour] {
			result.PeakHour = h
		}
		if weights[h] < weights[result.QuietestHour] {
			result.QuietestHour = h
		}
	}
	for h := range weights {
		result.Histogram[h].Weight = round4(weights[h])
	}
	result.PeakPeriod = PeriodOf(result.PeakHour)
	return result
}

// PeriodOf: утро 5-11, день 12-16, вечер 17-20, ночь 21-4
func PeriodOf(hour int) string {
	switch {
	case hour >= 5 && hour <= 11:
		return PeriodMorning
	case hour >= 12 && hour <= 16:
		return PeriodAfternoon
	case hour >= 17 && hour <= 20:
		return PeriodEvening
	}
	return PeriodNight
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
