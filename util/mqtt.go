package util

import (
	"fmt"
	"sync"

	MQTT "github.com/eclipse/paho.mqtt.golang"
)

var Client MQTT.Client

var mqttMu sync.Mutex

var subscriptions map[string]MQTT.MessageHandler

var connectHandlers map[string]func(MQTT.Client)

func OnlineTopic() string {
	return Config.GetString("topic_base") + "/online"
}

var connectHandler MQTT.OnConnectHandler = func(client MQTT.Client) {
	Logger.Info().Msg("MQTT connected")
	subscribe(client)
	client.Publish(OnlineTopic(), 0, false, "online").Wait()
	mqttMu.Lock()
	handlers := make([]func(MQTT.Client), 0, len(connectHandlers))
	for _, handler := range connectHandlers {
		handlers = append(handlers, handler)
	}
	mqttMu.Unlock()
	for _, handler := range handlers {
		handler(client)
	}
}

func RegisterMQTTConnectHook(name string, handler func(MQTT.Client)) {
	mqttMu.Lock()
	defer mqttMu.Unlock()
	if connectHandlers == nil {
		connectHandlers = make(map[string]func(client MQTT.Client))
	}
	if handler == nil {
		delete(connectHandlers, name)
	} else {
		connectHandlers[name] = handler
	}
}

func subscribe(client MQTT.Client) {
	mqttMu.Lock()
	defer mqttMu.Unlock()
	for topic, handler := range subscriptions {
		if token := client.Subscribe(topic, 0, handler); token.Wait() && token.Error() != nil {
			Logger.Error().Msgf("Error Subscribing to %v: %v", topic, fmt.Errorf("%v", token.Error()))
		}
	}
}

func RegisterMQTTSubscription(topic string, handler MQTT.MessageHandler) {
	mqttMu.Lock()
	defer mqttMu.Unlock()
	if subscriptions == nil {
		subscriptions = make(map[string]MQTT.MessageHandler)
	}
	if handler == nil {
		delete(subscriptions, topic)
	} else {
		subscriptions[topic] = handler
	}
}

func receiver(client MQTT.Client, message MQTT.Message) {
	Logger.Warn().Msgf("Received message on %v but no handler", message.Topic())
}

var connectLostHandler MQTT.ConnectionLostHandler = func(client MQTT.Client, err error) {
	Logger.Info().Msgf("MQTT connect lost: %v", err)
}

// MQTTConnected reports whether the shared client exists and is connected.
func MQTTConnected() bool {
	return Client != nil && Client.IsConnected()
}

func MqttInit() {
	if !Config.GetBool("mqtt") {
		Logger.Debug().Msg("mqtt disabled")
		return
	}
	opts := MQTT.NewClientOptions()
	opts.AddBroker(Config.GetString("broker_uri"))
	opts.SetClientID(Config.GetString("id_base") + "_" + GetRandString((6)))
	opts.SetUsername(Config.GetString("username"))
	opts.SetPassword(Config.GetString("password"))
	opts.SetCleanSession(Config.GetBool("cleansess"))
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetWill(OnlineTopic(), "offline", 0, false)
	opts.OnConnectionLost = connectLostHandler
	opts.OnConnect = connectHandler
	opts.SetDefaultPublishHandler(receiver)

	if Client != nil {
		Logger.Debug().Msg("Client exists - destroying")
		if Client.IsConnected() {
			Client.Disconnect(1000)
		}
		Client = nil
	}

	Client = MQTT.NewClient(opts)

	// with ConnectRetry the token only completes once connected, so don't block startup on it
	token := Client.Connect()
	go func() {
		if token.Wait() && token.Error() != nil {
			Logger.Error().Msgf("Error connecting to broker: %v", token.Error())
		}
	}()
}
