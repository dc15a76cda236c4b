package scheduler

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/iamruinous/meshtastic-mesh-gateway/internal/store"
)

// TimerTriggerConfig configures a timer trigger (§4.4): a message sent
// on a simple hour-of-day/day-of-week matrix rather than full cron
// syntax, since nothing in the examined stack carries a cron parser.
type TimerTriggerConfig struct {
	Hours    []int // 0-23; empty means every hour
	Weekdays []time.Weekday
	Channel  uint32
	Text     string
}

func (c TimerTriggerConfig) matches(t time.Time) bool {
	if len(c.Hours) > 0 && !containsInt(c.Hours, t.Hour()) {
		return false
	}
	if len(c.Weekdays) > 0 && !containsWeekday(c.Weekdays, t.Weekday()) {
		return false
	}
	return true
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

func containsWeekday(xs []time.Weekday, v time.Weekday) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

// NewTimerTriggerTask fires cfg's text on Channel whenever a tick lands
// inside the configured hour/weekday window. Interval should be short
// enough (e.g. a minute) that the window isn't skipped over entirely.
func NewTimerTriggerTask(name string, interval time.Duration, cfg TimerTriggerConfig, sess Sender, st store.Store) *Task {
	var lastFired time.Time
	return &Task{
		Name:     name,
		Interval: interval,
		Fn: func(ctx context.Context, tickStart time.Time) error {
			if !cfg.matches(tickStart) {
				return nil
			}
			if tickStart.Sub(lastFired) < time.Hour {
				return nil // already fired within this hour's window
			}
			if _, err := sess.SendText(ctx, BroadcastNodeNum, cfg.Channel, cfg.Text, false); err != nil {
				return err
			}
			lastFired = tickStart
			auditf(ctx, st, tickStart.UnixMilli(), "timer-trigger", "fired %q on channel %d", name, cfg.Channel)
			return nil
		},
	}
}

// GeofenceShape is a circle, or a polygon when Vertices has at least
// three points (Vertices takes precedence over the circle fields). Both
// are cheap to check against a point with stdlib math alone, with no
// polygon library in the dependency set.
type GeofenceShape struct {
	CenterLat, CenterLon float64
	RadiusMeters         float64
	Vertices             []LatLon
}

// LatLon is a single geofence polygon vertex.
type LatLon struct {
	Lat, Lon float64
}

func (g GeofenceShape) contains(lat, lon float64) bool {
	if len(g.Vertices) >= 3 {
		return pointInPolygon(g.Vertices, lat, lon)
	}
	return haversineMeters(g.CenterLat, g.CenterLon, lat, lon) <= g.RadiusMeters
}

// pointInPolygon is the standard ray-casting test: count how many polygon
// edges a ray cast eastward from (lat, lon) crosses; an odd count means
// the point is inside. Treats lat/lon as planar coordinates, which is
// accurate enough for the small areas a mesh geofence covers.
func pointInPolygon(vertices []LatLon, lat, lon float64) bool {
	inside := false
	n := len(vertices)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		vi, vj := vertices[i], vertices[j]
		if (vi.Lat > lat) != (vj.Lat > lat) {
			lonAtLat := (vj.Lon-vi.Lon)*(lat-vi.Lat)/(vj.Lat-vi.Lat) + vi.Lon
			if lon < lonAtLat {
				inside = !inside
			}
		}
	}
	return inside
}

const earthRadiusMeters = 6371000.0

func haversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMeters * c
}

// GeofenceTriggerConfig configures a geofence trigger (§4.4): entry and
// exit events fire once per transition; "while inside" events repeat on
// every tick a matching node remains within the shape.
type GeofenceTriggerConfig struct {
	Filter       NodeFilter
	Shape        GeofenceShape
	OnEntryText  string
	OnExitText   string
	WhileInside  string // optional; empty disables periodic while-inside messages
	ReplyChannel uint32
}

// NewGeofenceTriggerTask watches filtered nodes' last-known positions
// and fires entry/exit/while-inside text messages as they cross Shape's
// boundary.
func NewGeofenceTriggerTask(name string, interval time.Duration, cfg GeofenceTriggerConfig, sess Sender, st store.Store) *Task {
	inside := make(map[uint32]bool)
	return &Task{
		Name:     name,
		Interval: interval,
		Fn: func(ctx context.Context, tickStart time.Time) error {
			nodes, err := st.ListNodes(ctx)
			if err != nil {
				return fmt.Errorf("scheduler: list nodes: %w", err)
			}
			for _, n := range SelectNodes(nodes, cfg.Filter, false) {
				pos := n.EffectivePosition()
				if pos == nil {
					continue
				}
				now := cfg.Shape.contains(pos.Latitude, pos.Longitude)
				was := inside[n.NodeNum]

				switch {
				case now && !was:
					sendGeofenceText(ctx, sess, st, tickStart, n.NodeNum, cfg.ReplyChannel, cfg.OnEntryText, "entry")
				case !now && was:
					sendGeofenceText(ctx, sess, st, tickStart, n.NodeNum, cfg.ReplyChannel, cfg.OnExitText, "exit")
				case now && was && cfg.WhileInside != "":
					sendGeofenceText(ctx, sess, st, tickStart, n.NodeNum, cfg.ReplyChannel, cfg.WhileInside, "while-inside")
				}
				inside[n.NodeNum] = now
			}
			return nil
		},
	}
}

func sendGeofenceText(ctx context.Context, sess Sender, st store.Store, at time.Time, nodeNum, channel uint32, text, event string) {
	if text == "" {
		return
	}
	if _, err := sess.SendText(ctx, nodeNum, channel, text, false); err != nil {
		auditf(ctx, st, at.UnixMilli(), "geofence-trigger", "%s -> node %s failed: %v", event, store.NodeID(nodeNum), err)
		return
	}
	auditf(ctx, st, at.UnixMilli(), "geofence-trigger", "%s -> node %s", event, store.NodeID(nodeNum))
}
