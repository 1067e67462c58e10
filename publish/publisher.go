// Package publish sends new-cell events and sightings to an MQTT broker.
//
// Topic structure:
//
//	<prefix>/cells/new/<technology>  one message per cell first logged
//	<prefix>/sightings/<technology>  one message per accepted measurement
//
// Payloads are JSON. Publishing never blocks the caller: events are queued
// and dropped when the queue is full or the broker is unreachable.
package publish

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"cellinfo/cell"
	"cellinfo/geo"
	"cellinfo/history"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	defaultPort        = 1883
	defaultTopicPrefix = "cellinfo"
	defaultQueueDepth  = 256
	publishTimeout     = 5 * time.Second
)

// Options configures the publisher. Zero values take defaults.
type Options struct {
	Broker         string
	Port           int
	Username       string
	Password       string
	TopicPrefix    string
	ClientIDPrefix string
	QoS            byte
	RetainNewCells bool
	Sightings      bool
	QueueDepth     int
}

// NewCellEvent is the payload for a cell logged for the first time.
type NewCellEvent struct {
	ID         string     `json:"id"`
	Technology string     `json:"technology"`
	Band       int        `json:"band"`
	Channel    int        `json:"channel"`
	PCI        int        `json:"pci"`
	SiteID     string     `json:"site_id,omitempty"`
	SectorID   string     `json:"sector_id,omitempty"`
	TAC        int        `json:"tac"`
	MCC        string     `json:"mcc,omitempty"`
	MNC        string     `json:"mnc,omitempty"`
	Operator   string     `json:"operator,omitempty"`
	Signal     *int       `json:"signal,omitempty"`
	Location   *geo.Point `json:"location,omitempty"`
	FirstSeen  int64      `json:"first_seen"`
}

// SightingEvent is the payload for one accepted measurement.
type SightingEvent struct {
	Time        int64            `json:"t"`
	Band        int              `json:"band"`
	Grid        string           `json:"grid,omitempty"`
	Measurement cell.Measurement `json:"measurement"`
}

type message struct {
	topic    string
	payload  []byte
	retained bool
}

type publishFunc func(topic string, qos byte, retained bool, payload []byte) error

// Publisher owns the MQTT client and a bounded outbound queue.
type Publisher struct {
	opts     Options
	client   mqtt.Client
	publish  publishFunc
	queue    chan message
	wg       sync.WaitGroup
	stopOnce sync.Once

	sent    atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

// New builds a Publisher; call Connect to start it.
func New(opts Options) *Publisher {
	if opts.Port <= 0 {
		opts.Port = defaultPort
	}
	if strings.TrimSpace(opts.TopicPrefix) == "" {
		opts.TopicPrefix = defaultTopicPrefix
	}
	opts.TopicPrefix = strings.TrimRight(opts.TopicPrefix, "/")
	if opts.ClientIDPrefix == "" {
		opts.ClientIDPrefix = "cellinfo"
	}
	if opts.QueueDepth <= 0 {
		opts.QueueDepth = defaultQueueDepth
	}
	if opts.QoS > 2 {
		opts.QoS = 1
	}
	return &Publisher{opts: opts, queue: make(chan message, opts.QueueDepth)}
}

// Connect establishes the broker connection and starts the send loop.
func (p *Publisher) Connect() error {
	opts := mqtt.NewClientOptions()
	brokerURL := fmt.Sprintf("tcp://%s:%d", p.opts.Broker, p.opts.Port)
	opts.AddBroker(brokerURL)
	opts.SetClientID(p.opts.ClientIDPrefix + "-" + uuid.NewString())
	if p.opts.Username != "" {
		opts.SetUsername(p.opts.Username)
		opts.SetPassword(p.opts.Password)
	}
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(1 * time.Minute)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Printf("MQTT: connected to %s", brokerURL)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("MQTT: connection lost: %v", err)
	})

	p.client = mqtt.NewClient(opts)
	log.Printf("MQTT: connecting to %s...", brokerURL)
	token := p.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("publish: connect %s: %w", brokerURL, token.Error())
	}
	p.publish = p.mqttPublish
	p.start()
	return nil
}

func (p *Publisher) mqttPublish(topic string, qos byte, retained bool, payload []byte) error {
	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timed out", topic)
	}
	return token.Error()
}

func (p *Publisher) start() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for msg := range p.queue {
			if err := p.publish(msg.topic, p.opts.QoS, msg.retained, msg.payload); err != nil {
				p.failed.Add(1)
				log.Printf("MQTT: %v", err)
				continue
			}
			p.sent.Add(1)
		}
	}()
}

// PublishNewCell queues a new-cell event.
func (p *Publisher) PublishNewCell(rec history.LoggedCell) {
	ev := NewCellEvent{
		ID:         rec.ID,
		Technology: string(rec.Technology),
		Band:       rec.Band,
		Channel:    rec.Channel,
		PCI:        rec.PCI,
		SiteID:     rec.SiteID,
		SectorID:   rec.SectorID,
		TAC:        rec.TAC,
		MCC:        rec.MCC,
		MNC:        rec.MNC,
		Operator:   rec.Operator,
		Signal:     rec.Signal,
		Location:   rec.Location,
		FirstSeen:  rec.FirstSeen.UnixMilli(),
	}
	p.enqueue(p.topic("cells/new", rec.Technology), ev, p.opts.RetainNewCells)
}

// PublishSighting queues a sighting when sighting publication is enabled.
func (p *Publisher) PublishSighting(at time.Time, m cell.Measurement, loc *geo.Point, band int) {
	if !p.opts.Sightings {
		return
	}
	ev := SightingEvent{Time: at.UnixMilli(), Band: band, Measurement: m}
	if loc != nil {
		m.Location = loc
		ev.Measurement = m
		ev.Grid, _ = geo.Grid6(*loc)
	}
	p.enqueue(p.topic("sightings", m.Technology), ev, false)
}

func (p *Publisher) topic(kind string, tech cell.Technology) string {
	t := strings.ToLower(string(tech))
	if t == "" {
		t = "unknown"
	}
	return p.opts.TopicPrefix + "/" + kind + "/" + t
}

func (p *Publisher) enqueue(topic string, v any, retained bool) {
	payload, err := json.Marshal(v)
	if err != nil {
		p.failed.Add(1)
		log.Printf("MQTT: encode %s: %v", topic, err)
		return
	}
	select {
	case p.queue <- message{topic: topic, payload: payload, retained: retained}:
	default:
		p.dropped.Add(1)
	}
}

// Counts reports messages sent, dropped on a full queue, and failed.
func (p *Publisher) Counts() (sent, dropped, failed uint64) {
	return p.sent.Load(), p.dropped.Load(), p.failed.Load()
}

// Stop drains the queue and disconnects.
func (p *Publisher) Stop() {
	p.stopOnce.Do(func() {
		close(p.queue)
		p.wg.Wait()
		if p.client != nil && p.client.IsConnected() {
			p.client.Disconnect(250)
		}
		log.Println("MQTT: publisher stopped")
	})
}
