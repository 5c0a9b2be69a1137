package util

import (
	"encoding/json"
	"fmt"

	MQTT "github.com/eclipse/paho.mqtt.golang"
)

type HAAvdvertisementAvailability struct {
	Topic               string `json:"topic"`                 // : "node1/online"
	PayloadAvailable    string `json:"payload_available"`     // : "online"
	PayloadNotAvailable string `json:"payload_not_available"` // : "offline"
}

type HADeviceSpec struct {
	Name        string   `json:"name"` // : "Node1"
	Identifiers []string `json:"ids"`  // : ["node1"]
}

type HAAdvertisement struct { //nolint:govet // struct layout optimized for JSON field order
	HAAvdvertisementAvailability []HAAvdvertisementAvailability `json:"availability"`
	Device                       HADeviceSpec                   `json:"device"`                  // Device info
	UniqueID                     string                         `json:"uniq_id"`                 // "node1-motion"
	Name                         string                         `json:"name"`                    // : "Motion"
	StateTopic                   string                         `json:"state_topic"`             // : "node1/motion"
	CommandTopic                 string                         `json:"command_topic,omitempty"` // : "node1/led1/set"
	PayloadOn                    string                         `json:"payload_on,omitempty"`    // : "motion"
	PayloadOff                   string                         `json:"payload_off,omitempty"`
	DeviceClass                  string                         `json:"device_class,omitempty"` // : "motion"
	Platform                     string                         `json:"platform"`               // "binary_sensor"
	Min                          *int                           `json:"min,omitempty"`
	Max                          *int                           `json:"max,omitempty"`
	Qos                          int                            `json:"qos"`
}

// HAEntity describes one entity of the device for discovery.
type HAEntity struct {
	ObjectID     string // led1
	Name         string // LED1
	Platform     string // binary_sensor, switch, number
	StateTopic   string
	CommandTopic string
	DeviceClass  string
	PayloadOn    string
	PayloadOff   string
	Min, Max     *int
}

func (ha HAAdvertisement) ToJson() string {
	data, err := json.Marshal(ha)
	if err != nil {
		Logger.Error().Msgf("Error marshalling HAAdvertisement: %v", err)
		return ""
	}
	return string(data)
}

// ConfigTopic is the discovery topic HA listens on for this entity.
func (e HAEntity) ConfigTopic(device string) string {
	return fmt.Sprintf("homeassistant/%s/%s/%s/config", e.Platform, device, e.ObjectID)
}

func ConstructHAAdvertisement(device string, e HAEntity) HAAdvertisement {
	return HAAdvertisement{
		Name:         e.Name,
		StateTopic:   e.StateTopic,
		CommandTopic: e.CommandTopic,
		PayloadOn:    e.PayloadOn,
		PayloadOff:   e.PayloadOff,
		HAAvdvertisementAvailability: []HAAvdvertisementAvailability{
			{
				Topic:               OnlineTopic(),
				PayloadAvailable:    "online",
				PayloadNotAvailable: "offline",
			},
		},
		Qos:         0,
		UniqueID:    device + "-" + e.ObjectID,
		DeviceClass: e.DeviceClass,
		Platform:    e.Platform,
		Min:         e.Min,
		Max:         e.Max,
		Device: HADeviceSpec{
			Name:        device,
			Identifiers: []string{device},
		},
	}
}

func AdvertiseHA(device string, entities []HAEntity, client MQTT.Client) {
	for _, e := range entities {
		ha := ConstructHAAdvertisement(device, e)
		if token := client.Publish(e.ConfigTopic(device), 0, true, ha.ToJson()); token.Wait() && token.Error() != nil {
			Logger.Error().Msgf("Error Publishing: %v", fmt.Errorf("%v", token.Error()))
		}
	}
}
