package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/nerrad567/feeder-core/internal/device"
	"github.com/nerrad567/feeder-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/feeder-core/internal/schedule"
)

// Provisioning is the bootstrap document a feeder is flashed with.
type Provisioning struct {
	DeviceID  int64               `json:"device_id"`
	Serial    string              `json:"serial"`
	Name      string              `json:"name"`
	Backend   ProvisioningServer  `json:"backend"`
	Control   ProvisioningHost    `json:"control"`
	MQTT      ProvisioningMQTT    `json:"mqtt"`
	Settings  *device.Settings    `json:"settings"`
	Schedules []schedule.Schedule `json:"schedules"`
}

// ProvisioningServer tells the feeder where to poll.
type ProvisioningServer struct {
	BaseURL       string `json:"base_url"`
	FeedCheckPath string `json:"feed_check_path"`
	LogIngestPath string `json:"log_ingest_path"`
	SchedulePath  string `json:"schedule_path"`
}

// ProvisioningHost is the feeder's own control endpoint.
type ProvisioningHost struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// ProvisioningMQTT is the optional broker block. Host is empty when the
// feeder should not use MQTT.
type ProvisioningMQTT struct {
	Host          string `json:"host"`
	Port          int    `json:"port"`
	Group         string `json:"group"`
	LogTopic      string `json:"log_topic"`
	FeedTopic     string `json:"feed_topic"`
	ScheduleTopic string `json:"schedule_topic"`
}

// handleProvisioning returns the bootstrap JSON as a download.
func (s *Server) handleProvisioning(w http.ResponseWriter, r *http.Request) {
	dev := deviceFromContext(r.Context())

	settings, err := s.devices.Settings(r.Context(), dev.ID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	schedules, err := s.schedules.ListByDevice(r.Context(), dev.ID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	host, port := s.devices.Endpoint(dev)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="config-%s.json"`, dev.Serial))
	writeJSON(w, http.StatusOK, s.buildProvisioning(dev, host, port, settings, schedules))
}

func (s *Server) buildProvisioning(dev *device.Device, host string, port int, settings *device.Settings, schedules []schedule.Schedule) Provisioning {
	topics := mqtt.Topics{}

	broker := ProvisioningMQTT{
		Host:          settings.MQTTHost,
		Port:          settings.MQTTPort,
		Group:         settings.MQTTGroup,
		LogTopic:      topics.DeviceLog(dev.Serial),
		FeedTopic:     topics.DeviceFeed(dev.Serial),
		ScheduleTopic: topics.DeviceSchedule(dev.Serial),
	}
	// Device-level settings win; otherwise advertise the core's broker.
	if broker.Host == "" && s.mqttCfg.Enabled {
		broker.Host = s.mqttCfg.Broker.Host
		broker.Port = s.mqttCfg.Broker.Port
	}
	if broker.Port == 0 {
		broker.Port = device.DefaultMQTTPort
	}

	return Provisioning{
		DeviceID: dev.ID,
		Serial:   dev.Serial,
		Name:     dev.Name,
		Backend: ProvisioningServer{
			BaseURL:       strings.TrimRight(s.cfg.PublicURL, "/"),
			FeedCheckPath: "/feed/check",
			LogIngestPath: "/logs/ingest",
			SchedulePath:  "/api/schedule/" + dev.Serial,
		},
		Control:   ProvisioningHost{Host: host, Port: port},
		MQTT:      broker,
		Settings:  settings,
		Schedules: schedules,
	}
}
