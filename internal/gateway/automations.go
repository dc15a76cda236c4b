package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/iamruinous/meshtastic-mesh-gateway/internal/config"
	"github.com/iamruinous/meshtastic-mesh-gateway/internal/mqttmirror"
	"github.com/iamruinous/meshtastic-mesh-gateway/internal/output"
	"github.com/iamruinous/meshtastic-mesh-gateway/internal/scheduler"
	"github.com/iamruinous/meshtastic-mesh-gateway/internal/store"
)

// defaultAutomationInterval is used for any automation whose settings
// entry omits (or sets invalid) an interval.
const defaultAutomationInterval = 5 * time.Minute

// getSettingJSON reads key from the store and unmarshals it into out. It
// reports false, nil if the key is unset, so callers can tell "disabled
// by omission" apart from "malformed and should be logged".
func getSettingJSON(ctx context.Context, st store.Store, key string, out interface{}) (bool, error) {
	raw, ok, err := st.GetSetting(ctx, key)
	if err != nil {
		return false, fmt.Errorf("gateway: read setting %s: %w", key, err)
	}
	if !ok || raw == "" {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, fmt.Errorf("gateway: parse setting %s: %w", key, err)
	}
	return true, nil
}

func parseIntervalOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// registerAutomations reads each automation's settings entry and
// registers its task if enabled. A missing or disabled entry simply
// means that automation doesn't run; nothing here is mandatory.
func registerAutomations(ctx context.Context, sch *scheduler.Scheduler, sess scheduler.Sender, st store.Store) error {
	type announceSetting struct {
		Enabled  bool
		Interval string
		Channel  uint32
		Text     string
	}
	var announce announceSetting
	if ok, err := getSettingJSON(ctx, st, "automation.auto_announce", &announce); err != nil {
		return err
	} else if ok && announce.Enabled {
		sch.Register(scheduler.NewAutoAnnounceTask("auto-announce", parseIntervalOr(announce.Interval, defaultAutomationInterval),
			scheduler.AutoAnnounceConfig{Channel: announce.Channel, Text: announce.Text}, sess, st))
	}

	type welcomeSetting struct {
		Enabled         bool
		Interval        string
		Channel         uint32
		Text            string
		RequireLongName bool
		MaxHops         uint32
	}
	var welcome welcomeSetting
	if ok, err := getSettingJSON(ctx, st, "automation.auto_welcome", &welcome); err != nil {
		return err
	} else if ok && welcome.Enabled {
		sch.Register(scheduler.NewAutoWelcomeTask("auto-welcome", parseIntervalOr(welcome.Interval, time.Minute),
			scheduler.AutoWelcomeConfig{
				Channel: welcome.Channel, Text: welcome.Text,
				RequireLongName: welcome.RequireLongName, MaxHops: welcome.MaxHops,
			}, sess, st))
	}

	type keyRepairSetting struct {
		Enabled      bool
		Interval     string
		MaxExchanges int
		AutoPurge    bool
	}
	var keyRepair keyRepairSetting
	if ok, err := getSettingJSON(ctx, st, "automation.auto_key_repair", &keyRepair); err != nil {
		return err
	} else if ok && keyRepair.Enabled {
		sch.Register(scheduler.NewAutoKeyRepairTask("auto-key-repair", parseIntervalOr(keyRepair.Interval, defaultAutomationInterval),
			scheduler.AutoKeyRepairConfig{MaxExchanges: keyRepair.MaxExchanges, AutoPurge: keyRepair.AutoPurge}, sess, st))
	}

	type adminScanSetting struct {
		Enabled      bool
		Interval     string
		RecheckAfter string
		Budget       int
	}
	var adminScan adminScanSetting
	if ok, err := getSettingJSON(ctx, st, "automation.remote_admin_scanner", &adminScan); err != nil {
		return err
	} else if ok && adminScan.Enabled {
		sch.Register(scheduler.NewRemoteAdminScannerTask("remote-admin-scanner", parseIntervalOr(adminScan.Interval, defaultAutomationInterval),
			scheduler.RemoteAdminScannerConfig{
				RecheckAfter: parseIntervalOr(adminScan.RecheckAfter, 24*time.Hour),
				Budget:       adminScan.Budget,
			}, sess, st))
	}

	type timeSyncSetting struct {
		Enabled  bool
		Interval string
		Filter   scheduler.NodeFilter
		Budget   int
	}
	var timeSync timeSyncSetting
	if ok, err := getSettingJSON(ctx, st, "automation.auto_time_sync", &timeSync); err != nil {
		return err
	} else if ok && timeSync.Enabled {
		sch.Register(scheduler.NewAutoTimeSyncTask("auto-time-sync", parseIntervalOr(timeSync.Interval, defaultAutomationInterval),
			scheduler.AutoTimeSyncConfig{Filter: timeSync.Filter, Budget: timeSync.Budget}, sess, st))
	}

	type tracerouteSetting struct {
		Enabled        bool
		Interval       string
		Filter         scheduler.NodeFilter
		Budget         int
		SortByHopsDesc bool
		Channel        uint32
	}
	var traceroute tracerouteSetting
	if ok, err := getSettingJSON(ctx, st, "automation.auto_traceroute", &traceroute); err != nil {
		return err
	} else if ok && traceroute.Enabled {
		sch.Register(scheduler.NewAutoTracerouteTask("auto-traceroute", parseIntervalOr(traceroute.Interval, defaultAutomationInterval),
			scheduler.AutoTracerouteConfig{
				Filter: traceroute.Filter, Budget: traceroute.Budget,
				SortByHopsDesc: traceroute.SortByHopsDesc, Channel: traceroute.Channel,
			}, sess, st))
	}

	type timerTriggerSetting struct {
		Name     string
		Interval string
		Hours    []int
		Weekdays []int
		Channel  uint32
		Text     string
	}
	var timerTriggers []timerTriggerSetting
	if ok, err := getSettingJSON(ctx, st, "automation.timer_triggers", &timerTriggers); err != nil {
		return err
	} else if ok {
		for _, t := range timerTriggers {
			weekdays := make([]time.Weekday, 0, len(t.Weekdays))
			for _, w := range t.Weekdays {
				weekdays = append(weekdays, time.Weekday(w))
			}
			sch.Register(scheduler.NewTimerTriggerTask("timer-trigger."+t.Name, parseIntervalOr(t.Interval, time.Minute),
				scheduler.TimerTriggerConfig{Hours: t.Hours, Weekdays: weekdays, Channel: t.Channel, Text: t.Text}, sess, st))
		}
	}

	type geofenceTriggerSetting struct {
		Name         string
		Interval     string
		Filter       scheduler.NodeFilter
		CenterLat    float64
		CenterLon    float64
		RadiusMeters float64
		Vertices     []scheduler.LatLon // >= 3 entries selects a polygon shape over the circle fields
		OnEntryText  string
		OnExitText   string
		WhileInside  string
		ReplyChannel uint32
	}
	var geofenceTriggers []geofenceTriggerSetting
	if ok, err := getSettingJSON(ctx, st, "automation.geofence_triggers", &geofenceTriggers); err != nil {
		return err
	} else if ok {
		for _, t := range geofenceTriggers {
			sch.Register(scheduler.NewGeofenceTriggerTask("geofence-trigger."+t.Name, parseIntervalOr(t.Interval, time.Minute),
				scheduler.GeofenceTriggerConfig{
					Filter: t.Filter,
					Shape: scheduler.GeofenceShape{
						CenterLat: t.CenterLat, CenterLon: t.CenterLon, RadiusMeters: t.RadiusMeters,
						Vertices: t.Vertices,
					},
					OnEntryText: t.OnEntryText, OnExitText: t.OnExitText,
					WhileInside: t.WhileInside, ReplyChannel: t.ReplyChannel,
				}, sess, st))
		}
	}

	return nil
}

// newResponder builds the auto-responder from its settings entry, or
// returns nil if none is configured.
func newResponder(ctx context.Context, st store.Store, sess scheduler.Sender) (*scheduler.Responder, error) {
	type ruleSetting struct {
		Pattern             string
		Action              string
		ReplyText           string
		URL                 string
		Script              string
		SkipIncompleteNodes bool
	}
	var settings []ruleSetting
	ok, err := getSettingJSON(ctx, st, "automation.responder_rules", &settings)
	if err != nil {
		return nil, err
	}
	if !ok || len(settings) == 0 {
		return nil, nil
	}

	rules := make([]scheduler.ResponderRule, 0, len(settings))
	for _, rs := range settings {
		pattern, err := scheduler.CompilePattern(rs.Pattern)
		if err != nil {
			return nil, fmt.Errorf("gateway: compile responder pattern %q: %w", rs.Pattern, err)
		}
		rules = append(rules, scheduler.ResponderRule{
			Pattern:             pattern,
			Action:              scheduler.ResponderActionKind(rs.Action),
			ReplyText:           rs.ReplyText,
			URL:                 rs.URL,
			Script:              rs.Script,
			SkipIncompleteNodes: rs.SkipIncompleteNodes,
		})
	}
	return scheduler.NewResponder(rules, sess, st), nil
}

// newMirror builds the MQTT mirror from its settings entry, or returns
// an error if none is configured or the connection fails (the caller
// logs and continues without a mirror rather than failing startup).
func newMirror(ctx context.Context, st store.Store) (*mqttmirror.Mirror, error) {
	var cfg struct {
		Enabled  bool
		Broker   string
		Topic    string
		ClientID string
		Username string
		Password string
		QoS      int
	}
	ok, err := getSettingJSON(ctx, st, "mqtt_mirror", &cfg)
	if err != nil {
		return nil, err
	}
	if !ok || !cfg.Enabled {
		return nil, fmt.Errorf("mqtt mirror not configured")
	}
	return mqttmirror.New(mqttmirror.Config{
		Broker: cfg.Broker, Topic: cfg.Topic, ClientID: cfg.ClientID,
		Username: cfg.Username, Password: cfg.Password, QoS: byte(cfg.QoS),
	})
}

// newOutputs builds the configured notification sinks from the settings
// table, skipping any that are disabled or fail to initialise.
func newOutputs(ctx context.Context, st store.Store) ([]output.Output, error) {
	type outputSetting struct {
		Name    string
		Type    string
		Enabled bool
		Options map[string]interface{}
	}
	var settings []outputSetting
	ok, err := getSettingJSON(ctx, st, "outputs", &settings)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	outputs := make([]output.Output, 0, len(settings))
	for _, o := range settings {
		if !o.Enabled {
			continue
		}
		out, err := output.New(config.OutputConfig{Type: o.Type, Enabled: o.Enabled, Options: o.Options})
		if err != nil {
			return nil, fmt.Errorf("gateway: build output %s: %w", o.Name, err)
		}
		outputs = append(outputs, out)
	}
	return outputs, nil
}
