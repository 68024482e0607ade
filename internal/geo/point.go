package geo

import (
	"errors"
	"fmt"
	"math"
)

const earthRadiusKm = 6371.0

var (
	ErrInvalidLatitude  = errors.New("latitude must be between -90 and 90")
	ErrInvalidLongitude = errors.New("longitude must be between -180 and 180")
	ErrInvalidRadius    = errors.New("radius must be positive")
)

// Point - географическая точка в градусах WGS84
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Validate проверяет диапазоны координат
func (p Point) Validate() error {
	if math.IsNaN(p.Lat) || p.Lat < -90 || p.Lat > 90 {
		return ErrInvalidLatitude
	}
	if math.IsNaN(p.Lng) || p.Lng < -180 || p.Lng > 180 {
		return ErrInvalidLongitude
	}
	return nil
}

func (p Point) String() string {
	return fmt.Sprintf("(%.6f, %.6f)", p.Lat, p.Lng)
}

// DistanceKm возвращает расстояние по большому кругу (haversine)
func DistanceKm(a, b Point) float64 {
	lat1 := toRad(a.Lat)
	lat2 := toRad(b.Lat)
	dLat := lat2 - lat1
	dLng := toRad(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}

// Subscription - пространственная подписка: центр и радиус
type Subscription struct {
	Center   Point   `json:"center"`
	RadiusKm float64 `json:"radius_km"`
}

func (s Subscription) Validate() error {
	if err := s.Center.Validate(); err != nil {
		return err
	}
	if math.IsNaN(s.RadiusKm) || s.RadiusKm <= 0 {
		return ErrInvalidRadius
	}
	return nil
}

// Contains сообщает, лежит ли точка внутри круга подписки
func (s Subscription) Contains(p Point) bool {
	return DistanceKm(s.Center, p) <= s.RadiusKm
}
