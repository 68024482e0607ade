package realtime_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/apperror"
	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/auth"
	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/geo"
	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/models"
	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/realtime"
	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/realtime/mocks"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type managerFixture struct {
	manager   *realtime.Manager
	registry  *realtime.Registry
	auth      *mocks.MockAuthenticator
	incidents *mocks.MockIncidentLookup
	grid      geo.Grid
}

func newManagerFixture(t *testing.T) *managerFixture {
	ctrl := gomock.NewController(t)
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})

	f := &managerFixture{
		registry:  realtime.NewRegistry(logger),
		auth:      mocks.NewMockAuthenticator(ctrl),
		incidents: mocks.NewMockIncidentLookup(ctrl),
		grid:      geo.NewGrid(2),
	}
	f.manager = realtime.NewManager(f.registry, f.auth, f.incidents, realtime.Options{
		Grid:           f.grid,
		OutboundBuffer: 32,
		Overflow:       realtime.DropOldest,
		LookupTimeout:  50 * time.Millisecond,
	}, logger)
	return f
}

func (f *managerFixture) connect(t *testing.T, token string, identity auth.Identity) *realtime.Connection {
	t.Helper()
	f.auth.EXPECT().Authenticate(gomock.Any(), token, auth.ModeOptional).Return(identity, nil)
	c, err := f.manager.Connect(context.Background(), realtime.ConnectRequest{Credential: token, Transport: "test"})
	require.NoError(t, err)
	drain(c)
	return c
}

func drain(c *realtime.Connection) []realtime.Message {
	var msgs []realtime.Message
	for {
		select {
		case m, ok := <-c.Outbound():
			if !ok {
				return msgs
			}
			msgs = append(msgs, m)
		default:
			return msgs
		}
	}
}

func failureOf(t *testing.T, result any) *apperror.Failure {
	t.Helper()
	ack, ok := result.(realtime.Ack)
	require.True(t, ok, "expected Ack, got %T", result)
	require.False(t, ack.Success)
	require.NotNil(t, ack.Error)
	return ack.Error
}

func raw(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

func admin() auth.Identity {
	return auth.Identity{UserID: "admin-1", Role: models.RoleAdmin, Authenticated: true}
}

func TestConnect_AnonymousGetsSuccessEventAndNoRooms(t *testing.T) {
	f := newManagerFixture(t)
	f.auth.EXPECT().Authenticate(gomock.Any(), "", auth.ModeOptional).Return(auth.Anonymous(), nil)

	c, err := f.manager.Connect(context.Background(), realtime.ConnectRequest{Transport: "test"})
	require.NoError(t, err)

	msgs := drain(c)
	require.Len(t, msgs, 1)
	assert.Equal(t, realtime.EventConnectionSuccess, msgs[0].Event)
	assert.Equal(t, realtime.StateActive, c.State())
	assert.Empty(t, c.Rooms())
	assert.Equal(t, 1, f.manager.Count())
}

func TestConnect_AuthFailureDegradesToAnonymous(t *testing.T) {
	f := newManagerFixture(t)
	f.auth.EXPECT().Authenticate(gomock.Any(), "Bearer x", auth.ModeOptional).
		Return(auth.Identity{}, apperror.Transient(errors.New("db down")))

	c, err := f.manager.Connect(context.Background(), realtime.ConnectRequest{Credential: "Bearer x", Transport: "test"})
	require.NoError(t, err)
	assert.False(t, c.Identity().Authenticated)
	assert.Equal(t, models.RoleAnonymous, c.Identity().Role)
}

func TestConnect_AdminJoinsRoleRooms(t *testing.T) {
	f := newManagerFixture(t)
	c := f.connect(t, "Bearer a", admin())

	assert.Equal(t, []string{"role:admins", "role:responders", "user:admin-1"}, c.Rooms())
}

func TestSubscribeLocation_ResubscribeReplacesCells(t *testing.T) {
	f := newManagerFixture(t)
	c := f.connect(t, "", auth.Anonymous())
	center := geo.Point{Lat: 12.97, Lng: 77.59}

	wide := f.manager.Handle(context.Background(), c, realtime.ActionLocationSubscribe,
		raw(map[string]float64{"lat": center.Lat, "lng": center.Lng, "radius": 10}))
	wideRes, ok := wide.(realtime.SubscribeResult)
	require.True(t, ok)

	narrow := f.manager.Handle(context.Background(), c, realtime.ActionLocationSubscribe,
		raw(map[string]float64{"lat": center.Lat, "lng": center.Lng, "radius": 2}))
	narrowRes, ok := narrow.(realtime.SubscribeResult)
	require.True(t, ok)

	assert.Less(t, narrowRes.RoomCount, wideRes.RoomCount)

	expected, err := f.grid.CellsCovering(center, 2)
	require.NoError(t, err)
	keys := make([]string, 0, len(expected))
	for _, cell := range expected {
		keys = append(keys, realtime.GridCell{Cell: cell}.Key())
	}
	assert.ElementsMatch(t, keys, c.Rooms())
	assert.Equal(t, len(expected), f.registry.RoomCount())
	assert.Equal(t, &geo.Subscription{Center: center, RadiusKm: 2}, c.Subscription())
}

func TestSubscribeLocation_Validation(t *testing.T) {
	f := newManagerFixture(t)
	c := f.connect(t, "", auth.Anonymous())

	tests := []struct {
		name  string
		data  string
		field string
	}{
		{"latitude out of range", `{"lat":120,"lng":77.59,"radius":5}`, "lat"},
		{"latitude not a number", `{"lat":"north","lng":77.59,"radius":5}`, "lat"},
		{"missing radius", `{"lat":12.97,"lng":77.59}`, "radius"},
		{"radius too large", `{"lat":12.97,"lng":77.59,"radius":51}`, "radius"},
		{"empty payload", ``, "lat"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := f.manager.Handle(context.Background(), c, realtime.ActionLocationSubscribe, json.RawMessage(tt.data))
			failure := failureOf(t, result)
			assert.Equal(t, apperror.KindValidation, failure.Code)
			assert.Equal(t, tt.field, failure.Field)
		})
	}
	assert.Empty(t, c.Rooms())
}

func TestUpdateLocation_KeepsPreviousRadius(t *testing.T) {
	f := newManagerFixture(t)
	c := f.connect(t, "", auth.Anonymous())

	f.manager.Handle(context.Background(), c, realtime.ActionLocationSubscribe,
		raw(map[string]float64{"lat": 12.97, "lng": 77.59, "radius": 3}))
	result := f.manager.Handle(context.Background(), c, realtime.ActionLocationUpdate,
		raw(map[string]float64{"lat": 13.0, "lng": 77.6}))

	assert.Equal(t, realtime.Ack{Success: true}, result)
	assert.Equal(t, 3.0, c.Subscription().RadiusKm)
	assert.Equal(t, geo.Point{Lat: 13.0, Lng: 77.6}, c.Subscription().Center)

	result = f.manager.Handle(context.Background(), c, realtime.ActionLocationUnsubscribe, nil)
	assert.Equal(t, realtime.Ack{Success: true}, result)
	assert.Nil(t, c.Subscription())
	assert.Equal(t, 0, f.registry.RoomCount())
}

func TestGridBroadcast_ConsumerAppliesRadius(t *testing.T) {
	f := newManagerFixture(t)
	c := f.connect(t, "", auth.Anonymous())
	f.manager.Handle(context.Background(), c, realtime.ActionLocationSubscribe,
		raw(map[string]float64{"lat": 12.97, "lng": 77.59, "radius": 1}))

	outside := geo.Point{Lat: 12.9795, Lng: 77.5995}
	cell := realtime.GridCell{Cell: f.grid.CellOf(outside)}
	require.Contains(t, c.Rooms(), cell.Key())

	assert.Equal(t, 0, f.registry.Broadcast(cell, realtime.Message{Event: "incident:created", Geo: &outside}))
	inside := geo.Point{Lat: 12.972, Lng: 77.591}
	cell = realtime.GridCell{Cell: f.grid.CellOf(inside)}
	assert.Equal(t, 1, f.registry.Broadcast(cell, realtime.Message{Event: "incident:created", Geo: &inside}))
	assert.Len(t, drain(c), 1)
}

func TestServerStats_RequiresAdmin(t *testing.T) {
	f := newManagerFixture(t)
	anon := f.connect(t, "", auth.Anonymous())
	citizen := f.connect(t, "Bearer c", auth.Identity{UserID: "c1", Role: models.RoleCitizen, Authenticated: true})
	responder := f.connect(t, "Bearer r", auth.Identity{UserID: "r1", Role: models.RoleResponder, Authenticated: true})
	adm := f.connect(t, "Bearer a", admin())

	failure := failureOf(t, f.manager.Handle(context.Background(), anon, realtime.ActionServerStats, nil))
	assert.Equal(t, apperror.KindAuthentication, failure.Code)

	failure = failureOf(t, f.manager.Handle(context.Background(), citizen, realtime.ActionServerStats, nil))
	assert.Equal(t, apperror.KindAuthorization, failure.Code)
	assert.Equal(t, "admin", failure.RequiredRole)

	_ = responder
	result := f.manager.Handle(context.Background(), adm, realtime.ActionServerStats, nil)
	stats, ok := result.(realtime.StatsResult)
	require.True(t, ok)
	assert.True(t, stats.Success)
	assert.Equal(t, 4, stats.TotalConnections)
	assert.Equal(t, 3, stats.AuthenticatedUsers)
	assert.Equal(t, 1, stats.Responders)
	assert.Equal(t, map[string]int{"test": 4}, stats.TransportBreakdown)
	// user:c1, user:r1, user:admin-1, role:responders, role:admins
	assert.Equal(t, 5, stats.Rooms)
}

func TestStatus_ReportsIdentityAndRooms(t *testing.T) {
	f := newManagerFixture(t)
	c := f.connect(t, "Bearer c", auth.Identity{UserID: "c1", Role: models.RoleCitizen, Authenticated: true})

	result := f.manager.Handle(context.Background(), c, realtime.ActionStatus, nil)
	status, ok := result.(realtime.StatusResult)
	require.True(t, ok)
	assert.Equal(t, c.ID(), status.ConnectionID)
	assert.True(t, status.Authenticated)
	assert.Equal(t, "citizen", status.Role)
	assert.Equal(t, "active", status.State)
	assert.Equal(t, []string{"user:c1"}, status.Rooms)
	assert.Nil(t, status.Location)
}

func TestSubscribeIncident(t *testing.T) {
	f := newManagerFixture(t)
	c := f.connect(t, "", auth.Anonymous())
	known := uuid.New()
	missing := uuid.New()
	flaky := uuid.New()

	f.incidents.EXPECT().IncidentExists(gomock.Any(), known).Return(true, nil)
	f.incidents.EXPECT().IncidentExists(gomock.Any(), missing).Return(false, nil)
	f.incidents.EXPECT().IncidentExists(gomock.Any(), flaky).Return(false, context.DeadlineExceeded)

	result := f.manager.Handle(context.Background(), c, realtime.ActionIncidentSubscribe, raw(map[string]string{"incidentId": known.String()}))
	assert.Equal(t, realtime.Ack{Success: true}, result)

	failure := failureOf(t, f.manager.Handle(context.Background(), c, realtime.ActionIncidentSubscribe, raw(map[string]string{"incidentId": missing.String()})))
	assert.Equal(t, apperror.KindNotFound, failure.Code)

	result = f.manager.Handle(context.Background(), c, realtime.ActionIncidentSubscribe, raw(map[string]string{"incidentId": flaky.String()}))
	assert.Equal(t, realtime.Ack{Success: true}, result)

	failure = failureOf(t, f.manager.Handle(context.Background(), c, realtime.ActionIncidentSubscribe, raw(map[string]string{"incidentId": "nope"})))
	assert.Equal(t, "incidentId", failure.Field)

	assert.ElementsMatch(t, []string{
		realtime.IncidentRoom{ID: known.String()}.Key(),
		realtime.IncidentRoom{ID: flaky.String()}.Key(),
	}, c.Rooms())

	result = f.manager.Handle(context.Background(), c, realtime.ActionIncidentUnsubscribe, raw(map[string]string{"incidentId": known.String()}))
	assert.Equal(t, realtime.Ack{Success: true}, result)
	result = f.manager.Handle(context.Background(), c, realtime.ActionIncidentUnsubscribe, raw(map[string]string{"incidentId": known.String()}))
	assert.Equal(t, realtime.Ack{Success: true}, result)
	assert.Len(t, c.Rooms(), 1)
}

func TestSubscribeCity_NormalizesName(t *testing.T) {
	f := newManagerFixture(t)
	c := f.connect(t, "", auth.Anonymous())

	result := f.manager.Handle(context.Background(), c, realtime.ActionCitySubscribe, raw(map[string]string{"city": "Bengaluru ", "state": "Karnataka"}))
	assert.Equal(t, realtime.Ack{Success: true}, result)
	assert.Equal(t, []string{"city:karnataka:bengaluru"}, c.Rooms())

	failure := failureOf(t, f.manager.Handle(context.Background(), c, realtime.ActionCitySubscribe, raw(map[string]string{"city": "Bengaluru"})))
	assert.Equal(t, "state", failure.Field)
}

func TestHandle_UnknownAction(t *testing.T) {
	f := newManagerFixture(t)
	c := f.connect(t, "", auth.Anonymous())

	failure := failureOf(t, f.manager.Handle(context.Background(), c, "teleport", nil))
	assert.Equal(t, apperror.KindValidation, failure.Code)
	assert.Equal(t, "event", failure.Field)
}

func TestDisconnect_ReleasesEverythingAndIsIdempotent(t *testing.T) {
	f := newManagerFixture(t)
	c := f.connect(t, "Bearer a", admin())
	f.manager.Handle(context.Background(), c, realtime.ActionLocationSubscribe,
		raw(map[string]float64{"lat": 12.97, "lng": 77.59, "radius": 10}))
	require.Greater(t, f.registry.RoomCount(), 3)

	f.manager.Disconnect(c)
	f.manager.Disconnect(c)

	assert.Equal(t, 0, f.registry.RoomCount())
	assert.Equal(t, 0, f.manager.Count())
	assert.Equal(t, realtime.StateDisconnected, c.State())
	assert.Empty(t, c.Rooms())
	assert.NoError(t, f.registry.Verify())

	_, open := <-c.Outbound()
	assert.False(t, open)

	failure := failureOf(t, f.manager.Handle(context.Background(), c, realtime.ActionLocationSubscribe,
		raw(map[string]float64{"lat": 12.97, "lng": 77.59, "radius": 10})))
	assert.Equal(t, apperror.KindValidation, failure.Code)
	assert.Equal(t, 0, f.registry.RoomCount())
}

// Disconnect посреди входа в тысячи ячеек не должен оставить соединение в реестре
func TestDisconnect_DuringSubscribeLeavesNoMembership(t *testing.T) {
	f := newManagerFixture(t)
	lat, lng, radius := 12.97, 77.59, 50.0

	for i := 0; i < 40; i++ {
		c := f.connect(t, "", auth.Anonymous())

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = f.manager.SubscribeLocation(c, realtime.LocationRequest{Lat: &lat, Lng: &lng, Radius: &radius})
		}()
		go func(delay time.Duration) {
			defer wg.Done()
			time.Sleep(delay)
			f.manager.Disconnect(c)
		}(time.Duration(i%8) * 200 * time.Microsecond)
		wg.Wait()

		require.Equal(t, 0, f.registry.RoomCount(), "iteration %d", i)
		assert.Empty(t, c.Rooms())
		assert.Nil(t, c.Subscription())
		assert.Equal(t, realtime.StateDisconnected, c.State())
	}
	assert.NoError(t, f.registry.Verify())
}

func TestSubscribeCity_AfterDisconnectIsRejected(t *testing.T) {
	f := newManagerFixture(t)
	c := f.connect(t, "", auth.Anonymous())
	f.manager.Disconnect(c)

	_, err := f.manager.SubscribeCity(c, realtime.CityRequest{City: "Pune", State: "Maharashtra"})
	assert.True(t, apperror.IsKind(err, apperror.KindValidation))
	assert.Equal(t, 0, f.registry.RoomCount())
}

func TestShutdown_NotifiesAndCloses(t *testing.T) {
	f := newManagerFixture(t)
	c := f.connect(t, "", auth.Anonymous())

	f.manager.Shutdown(context.Background(), 10*time.Millisecond)

	msgs := drain(c)
	require.Len(t, msgs, 1)
	assert.Equal(t, realtime.EventServerShutdown, msgs[0].Event)
	assert.Equal(t, 0, f.manager.Count())
	assert.Equal(t, realtime.StateDisconnected, c.State())
}
