package geo

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

const (
	// kmPerDegree - приближенная длина градуса широты
	kmPerDegree = 111.0

	// DefaultPrecision: 2 знака дают ячейки ~1.1 км на экваторе
	DefaultPrecision = 2

	// MaxOperatingLatitude - за этой широтой поправка по долготе расходится (cos -> 0)
	MaxOperatingLatitude = 85.0

	// MaxCells ограничивает размер одного покрытия
	MaxCells = 20000
)

var ErrTooManyCells = errors.New("query covers too many grid cells")

// Cell - идентификатор ячейки сетки: floor(lat*10^p), floor(lng*10^p)
type Cell struct {
	LatIdx int64 `json:"lat_idx"`
	LngIdx int64 `json:"lng_idx"`
}

func (c Cell) String() string {
	return fmt.Sprintf("%d:%d", c.LatIdx, c.LngIdx)
}

// Grid - разбиение плоскости широта/долгота на ячейки фиксированной точности.
// Смена точности делает недействительными все ранее вычисленные ячейки.
type Grid struct {
	precision int
	scale     float64
}

func NewGrid(precision int) Grid {
	if precision < 0 {
		precision = 0
	}
	return Grid{precision: precision, scale: math.Pow10(precision)}
}

func (g Grid) Precision() int {
	return g.precision
}

// CellOf возвращает ячейку, содержащую точку
func (g Grid) CellOf(p Point) Cell {
	return Cell{LatIdx: g.index(p.Lat), LngIdx: g.index(p.Lng)}
}

// Center возвращает геометрический центр ячейки
func (g Grid) Center(c Cell) Point {
	half := 0.5 / g.scale
	return Point{
		Lat: float64(c.LatIdx)/g.scale + half,
		Lng: float64(c.LngIdx)/g.scale + half,
	}
}

// CellsCovering возвращает все ячейки, прямоугольник которых может пересекать круг запроса.
// Покрытие избыточное: лучше лишняя ячейка, чем пропущенная. Результат отсортирован.
// Ограничения: широта края ограничивается MaxOperatingLatitude, а индексы долготы
// не переходят через ±180°, поэтому круг у антимеридиана не покрывает ячейки с другой стороны.
func (g Grid) CellsCovering(center Point, radiusKm float64) ([]Cell, error) {
	sub := Subscription{Center: center, RadiusKm: radiusKm}
	if err := sub.Validate(); err != nil {
		return nil, err
	}

	latDelta := radiusKm / kmPerDegree
	// Поправку по долготе берем для края полосы, дальнего от экватора:
	// так точки на границе круга не выпадают из покрытия.
	edgeLat := math.Min(math.Max(math.Abs(center.Lat-latDelta), math.Abs(center.Lat+latDelta)), MaxOperatingLatitude)
	lngDelta := radiusKm / (kmPerDegree * math.Cos(toRad(edgeLat)))

	minLat, maxLat := g.index(center.Lat-latDelta), g.index(center.Lat+latDelta)
	minLng, maxLng := g.index(center.Lng-lngDelta), g.index(center.Lng+lngDelta)

	count := (maxLat - minLat + 1) * (maxLng - minLng + 1)
	if count > MaxCells {
		return nil, fmt.Errorf("%w: %d cells for radius %.2f km", ErrTooManyCells, count, radiusKm)
	}

	cells := make([]Cell, 0, count)
	for lat := minLat; lat <= maxLat; lat++ {
		for lng := minLng; lng <= maxLng; lng++ {
			cells = append(cells, Cell{LatIdx: lat, LngIdx: lng})
		}
	}
	return cells, nil
}

func (g Grid) index(v float64) int64 {
	return int64(math.Floor(v * g.scale))
}

// SortCells упорядочивает ячейки по широте, затем по долготе
func SortCells(cells []Cell) {
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].LatIdx != cells[j].LatIdx {
			return cells[i].LatIdx < cells[j].LatIdx
		}
		return cells[i].LngIdx < cells[j].LngIdx
	})
}
