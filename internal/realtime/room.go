package realtime

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/geo"
	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/models"
)

// Room - именованный канал рассылки. Набор вариантов закрыт:
// GridCell, City, IncidentRoom, UserRoom, RoleGroup, Global.
type Room interface {
	Key() string
	isRoom()
}

// GridCell - ячейка пространственной сетки
type GridCell struct {
	Cell geo.Cell
}

// City - пара (штат, город) в нижнем регистре
type City struct {
	State string
	Name  string
}

// IncidentRoom - подписчики конкретного инцидента
type IncidentRoom struct {
	ID string
}

// UserRoom - приватная комната пользователя
type UserRoom struct {
	ID string
}

// RoleGroup - группа по роли
type RoleGroup struct {
	Group string
}

// Global - единственная общая комната, зарезервирована
type Global struct{}

const (
	GroupResponders = "responders"
	GroupAdmins     = "admins"
)

const (
	prefixCell     = "cell"
	prefixCity     = "city"
	prefixIncident = "incident"
	prefixUser     = "user"
	prefixRole     = "role"
	keyGlobal      = "global"
)

func (GridCell) isRoom()     {}
func (City) isRoom()         {}
func (IncidentRoom) isRoom() {}
func (UserRoom) isRoom()     {}
func (RoleGroup) isRoom()    {}
func (Global) isRoom()       {}

func (r GridCell) Key() string     { return Canonical(r) }
func (r City) Key() string         { return Canonical(r) }
func (r IncidentRoom) Key() string { return Canonical(r) }
func (r UserRoom) Key() string     { return Canonical(r) }
func (r RoleGroup) Key() string    { return Canonical(r) }
func (r Global) Key() string       { return Canonical(r) }

// NewCity нормализует регистр и пробелы
func NewCity(city, state string) City {
	return City{State: normalizeName(state), Name: normalizeName(city)}
}

func Responders() RoleGroup { return RoleGroup{Group: GroupResponders} }
func Admins() RoleGroup     { return RoleGroup{Group: GroupAdmins} }

// Canonical - единственная функция, переводящая комнату в стабильный ключ
func Canonical(r Room) string {
	switch v := r.(type) {
	case GridCell:
		return fmt.Sprintf("%s:%d:%d", prefixCell, v.Cell.LatIdx, v.Cell.LngIdx)
	case City:
		return fmt.Sprintf("%s:%s:%s", prefixCity, url.QueryEscape(normalizeName(v.State)), url.QueryEscape(normalizeName(v.Name)))
	case IncidentRoom:
		return prefixIncident + ":" + url.QueryEscape(v.ID)
	case UserRoom:
		return prefixUser + ":" + url.QueryEscape(v.ID)
	case RoleGroup:
		return prefixRole + ":" + v.Group
	case Global:
		return keyGlobal
	}
	panic(fmt.Sprintf("realtime: unknown room variant %T", r))
}

// ParseRoom восстанавливает комнату из ключа
func ParseRoom(key string) (Room, error) {
	if key == keyGlobal {
		return Global{}, nil
	}
	prefix, rest, ok := strings.Cut(key, ":")
	if !ok || rest == "" {
		return nil, fmt.Errorf("malformed room key %q", key)
	}
	switch prefix {
	case prefixCell:
		latStr, lngStr, ok := strings.Cut(rest, ":")
		if !ok {
			return nil, fmt.Errorf("malformed grid cell key %q", key)
		}
		lat, err := strconv.ParseInt(latStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed grid cell key %q: %w", key, err)
		}
		lng, err := strconv.ParseInt(lngStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed grid cell key %q: %w", key, err)
		}
		return GridCell{Cell: geo.Cell{LatIdx: lat, LngIdx: lng}}, nil
	case prefixCity:
		stateStr, cityStr, ok := strings.Cut(rest, ":")
		if !ok {
			return nil, fmt.Errorf("malformed city key %q", key)
		}
		state, err := url.QueryUnescape(stateStr)
		if err != nil {
			return nil, err
		}
		city, err := url.QueryUnescape(cityStr)
		if err != nil {
			return nil, err
		}
		return City{State: state, Name: city}, nil
	case prefixIncident:
		id, err := url.QueryUnescape(rest)
		if err != nil {
			return nil, err
		}
		return IncidentRoom{ID: id}, nil
	case prefixUser:
		id, err := url.QueryUnescape(rest)
		if err != nil {
			return nil, err
		}
		return UserRoom{ID: id}, nil
	case prefixRole:
		if rest != GroupResponders && rest != GroupAdmins {
			return nil, fmt.Errorf("unknown role group %q", rest)
		}
		return RoleGroup{Group: rest}, nil
	}
	return nil, fmt.Errorf("unknown room prefix in %q", key)
}

// autoRooms - комнаты, в которые соединение входит при активации
func autoRooms(userID string, authenticated bool, role models.Role) []Room {
	var rooms []Room
	if authenticated && userID != "" {
		rooms = append(rooms, UserRoom{ID: userID})
	}
	if role.Privileged() {
		rooms = append(rooms, Responders())
	}
	if role == models.RoleAdmin {
		rooms = append(rooms, Admins())
	}
	return rooms
}

func normalizeName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
