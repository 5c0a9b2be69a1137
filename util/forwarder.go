package util

import (
	"fmt"
	"sync"
	"time"
)

// SnapshotSource renders the current image to forward.
type SnapshotSource func() ([]byte, error)

// Forwarder publishes an image from Source every Frequency. Publish defaults
// to the shared MQTT client.
type Forwarder struct {
	Source    SnapshotSource
	Publish   func(topic string, payload []byte) error
	stop      chan struct{}
	Topic     string
	wg        sync.WaitGroup
	Frequency time.Duration
	mu        sync.Mutex
}

func NewForwarder(topic string, frequency time.Duration, source SnapshotSource) *Forwarder {
	return &Forwarder{
		Topic:     topic,
		Frequency: frequency,
		Source:    source,
		Publish:   publishShared,
	}
}

func publishShared(topic string, payload []byte) error {
	if !MQTTConnected() {
		return fmt.Errorf("mqtt not connected")
	}
	token := Client.Publish(topic, byte(0), false, payload)
	token.Wait()
	return token.Error()
}

func (f *Forwarder) Start() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stop != nil || f.Frequency <= 0 {
		return
	}
	f.stop = make(chan struct{})
	ticker := time.NewTicker(f.Frequency)
	f.wg.Add(1)
	go func(stop <-chan struct{}) {
		defer f.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				f.forward()
			}
		}
	}(f.stop)
}

func (f *Forwarder) Stop() {
	f.mu.Lock()
	if f.stop == nil {
		f.mu.Unlock()
		return
	}
	close(f.stop)
	f.stop = nil
	f.mu.Unlock()
	f.wg.Wait()
}

func (f *Forwarder) forward() {
	img, err := f.Source()
	if err != nil {
		Logger.Warn().Msgf("Unable to render snapshot for %v: %v", f.Topic, err)
		return
	}
	if err := f.Publish(f.Topic, img); err != nil {
		Logger.Debug().Msgf("Snapshot not published to %v: %v", f.Topic, err)
	}
}
