package main

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/elijahnyp/node1_dashboard/dashboard"
	"github.com/elijahnyp/node1_dashboard/state"
	. "github.com/elijahnyp/node1_dashboard/util"
)

const publishWait = 2 * time.Second

// Commands is what MQTT and the web page can ask of the dashboard.
type Commands interface {
	ToggleLed1(ctx context.Context) error
	SetLed1(ctx context.Context, l state.LedBinary) error
	SetLed2(ctx context.Context, n int) error
}

// MQTTBridge publishes every state change under <base>/ and turns messages
// on <base>/led1/set and <base>/led2/set into commands.
type MQTTBridge struct {
	ctx    context.Context
	ctrl   Commands
	store  *state.Store
	base   string
	device string
}

func NewMQTTBridge(ctx context.Context, base string, store *state.Store, ctrl Commands) *MQTTBridge {
	return &MQTTBridge{
		ctx:    ctx,
		ctrl:   ctrl,
		store:  store,
		base:   base,
		device: base,
	}
}

func (b *MQTTBridge) Topic(name string) string {
	return b.base + "/" + name
}

// Register hooks the bridge into the shared MQTT client. It must run before
// MqttInit so the subscriptions are made on the first connect.
func (b *MQTTBridge) Register() func() {
	RegisterMQTTSubscription(b.Topic("led1/set"), b.onLed1)
	RegisterMQTTSubscription(b.Topic("led2/set"), b.onLed2)
	RegisterMQTTConnectHook("state", func(client MQTT.Client) {
		b.PublishState(client, b.store.Snapshot())
	})
	if Config.GetBool("ha_discovery") {
		RegisterMQTTConnectHook("haadvertise", func(client MQTT.Client) {
			AdvertiseHA(b.device, b.Entities(), client)
		})
	}
	return b.store.Subscribe("mqtt", func(s state.Snapshot) {
		if MQTTConnected() {
			b.PublishState(Client, s)
		}
	})
}

func (b *MQTTBridge) PublishState(client MQTT.Client, s state.Snapshot) {
	for topic, payload := range map[string]string{
		b.Topic("motion"): string(s.Motion),
		b.Topic("led1"):   string(s.Led1),
		b.Topic("led2"):   strconv.Itoa(int(s.Led2)),
	} {
		token := client.Publish(topic, 0, true, payload)
		if token.WaitTimeout(publishWait) && token.Error() != nil {
			Logger.Error().Msgf("Error publishing %v: %v", topic, token.Error())
		}
	}
}

func (b *MQTTBridge) onLed1(client MQTT.Client, message MQTT.Message) {
	payload := strings.ToLower(strings.TrimSpace(string(message.Payload())))
	Logger.Debug().Msgf("led1 command %q on %s", payload, message.Topic())
	if payload == "toggle" {
		_ = b.ctrl.ToggleLed1(b.ctx) //nolint:errcheck // logged by the dashboard
		return
	}
	l, ok := state.ParseLedBinary(payload)
	if !ok {
		Logger.Warn().Msgf("ignoring led1 command %q, expected on, off or toggle", payload)
		return
	}
	_ = b.ctrl.SetLed1(b.ctx, l) //nolint:errcheck // logged by the dashboard
}

func (b *MQTTBridge) onLed2(client MQTT.Client, message MQTT.Message) {
	payload := strings.TrimSpace(string(message.Payload()))
	Logger.Debug().Msgf("led2 command %q on %s", payload, message.Topic())
	n, err := strconv.Atoi(payload)
	if err != nil {
		Logger.Warn().Msgf("ignoring led2 command %q: %v", payload, err)
		return
	}
	if err := b.ctrl.SetLed2(b.ctx, n); errors.Is(err, dashboard.ErrLevelOutOfRange) {
		Logger.Warn().Msgf("ignoring led2 command: %v", err)
	}
}

func (b *MQTTBridge) Entities() []HAEntity {
	minLevel, maxLevel := int(state.MinLevel), int(state.MaxLevel)
	return []HAEntity{
		{
			ObjectID:    "motion",
			Name:        "Motion",
			Platform:    "binary_sensor",
			StateTopic:  b.Topic("motion"),
			DeviceClass: "motion",
			PayloadOn:   string(state.MotionDetected),
			PayloadOff:  string(state.NoMotion),
		},
		{
			ObjectID:     "led1",
			Name:         "LED1",
			Platform:     "switch",
			StateTopic:   b.Topic("led1"),
			CommandTopic: b.Topic("led1/set"),
			PayloadOn:    string(state.LedOn),
			PayloadOff:   string(state.LedOff),
		},
		{
			ObjectID:     "led2",
			Name:         "LED2",
			Platform:     "number",
			StateTopic:   b.Topic("led2"),
			CommandTopic: b.Topic("led2/set"),
			Min:          &minLevel,
			Max:          &maxLevel,
		},
	}
}

// OnlinePinger keeps <base>/online fresh while connected.
func OnlinePinger(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		if MQTTConnected() {
			if token := Client.Publish(OnlineTopic(), 0, false, "online"); token.WaitTimeout(publishWait) && token.Error() != nil {
				Logger.Error().Msgf("Error publishing online message: %v", token.Error())
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// HAAdvertiser re-sends the discovery configs every 5 minutes so a
// restarted Home Assistant picks the device up again.
func HAAdvertiser(ctx context.Context, b *MQTTBridge) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if MQTTConnected() {
			Logger.Debug().Msg("Advertising Home Assistant discovery messages")
			AdvertiseHA(b.device, b.Entities(), Client)
		}
	}
}
