package mqttbridge

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/asticode/go-astidrone"
	"github.com/asticode/go-astilog"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
)

const qos = 2

// Client is the part of the MQTT client the bridge relies on
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
}

// Options configures a Bridge
type Options struct {
	AnnounceTimeout   time.Duration
	Broker            string
	CertCheck         bool
	ConnectTimeout    time.Duration
	DisconnectTimeout time.Duration
	DroneID           string
	Password          string
	TopicPrefix       string
	Username          string
}

// OptionsFromConfiguration converts the MQTT section of the drone configuration
func OptionsFromConfiguration(c astidrone.MQTTConfiguration) Options {
	return Options{
		AnnounceTimeout:   c.ConnectTimeout,
		Broker:            c.Broker,
		CertCheck:         c.CertCheck,
		ConnectTimeout:    c.ConnectTimeout,
		DisconnectTimeout: c.DisconnectTimeout,
		DroneID:           c.DroneID,
		Password:          c.Password,
		TopicPrefix:       c.TopicPrefix,
		Username:          c.Username,
	}
}

type message struct {
	payload []byte
	topic   string
}

// Bridge publishes what a flight controller does on MQTT topics and executes the wire commands
// received on its request topic
type Bridge struct {
	announceTopic string
	ctrl          *astidrone.FlightController
	eventsTopic   string
	o             Options
	out           chan message
	requests      chan string
	requestTopic  string
	responseTopic string
	stop          chan bool
}

// New creates a new bridge
func New(ctrl *astidrone.FlightController, o Options) *Bridge {
	if o.TopicPrefix == "" {
		o.TopicPrefix = "drone"
	}
	p := strings.TrimSuffix(o.TopicPrefix, "/")
	return &Bridge{
		announceTopic: p + "/announce",
		ctrl:          ctrl,
		eventsTopic:   fmt.Sprintf("%s/%s/events", p, o.DroneID),
		o:             o,
		out:           make(chan message, 1000),
		requests:      make(chan string, 100),
		requestTopic:  fmt.Sprintf("%s/%s/request", p, o.DroneID),
		responseTopic: fmt.Sprintf("%s/%s/response", p, o.DroneID),
		stop:          make(chan bool, 1),
	}
}

// Run connects to the broker and serves until Stop is called
func (b *Bridge) Run() (err error) {
	astilog.Infof("mqttbridge: connecting to %s", b.o.Broker)

	// Connect
	var c mqtt.Client
	if c, err = b.connect(); err != nil {
		err = errors.Wrap(err, "mqttbridge: connecting to broker failed")
		return
	}
	defer c.Disconnect(uint(b.o.DisconnectTimeout.Milliseconds()))

	// Serve
	return b.Serve(c)
}

func (b *Bridge) connect() (c mqtt.Client, err error) {
	opts := mqtt.NewClientOptions().AddBroker(b.o.Broker).SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetCredentialsProvider(func() (username string, password string) {
		return b.o.Username, b.o.Password
	})
	opts.SetClientID("astidrone-" + b.o.DroneID)
	opts.SetTLSConfig(&tls.Config{InsecureSkipVerify: !b.o.CertCheck})

	// Subscriptions don't survive clean sessions
	var connected atomic.Bool
	opts.SetOnConnectHandler(func(cl mqtt.Client) {
		if connected.Swap(true) {
			if err := b.subscribe(cl); err != nil {
				astilog.Error(errors.Wrap(err, "mqttbridge: resubscribing failed"))
			}
		}
	})

	c = mqtt.NewClient(opts)
	t := c.Connect()
	if !t.WaitTimeout(b.o.ConnectTimeout) {
		err = errors.New("mqttbridge: connecting timed out")
		return
	}
	err = t.Error()
	return
}

// Serve announces the drone, subscribes to the request topic and publishes controller events
// through c until Stop is called
func (b *Bridge) Serve(c Client) (err error) {
	astilog.Info("mqttbridge: starting")
	defer astilog.Info("mqttbridge: stopping")

	// Forward controller events
	for _, u := range []func(){
		b.ctrl.OnConnectionStateChanged(func(s astidrone.ConnectionState) {
			b.publishEvent(astidrone.ConnectionStateEvent, connectionStatePayload{State: s.String()})
		}),
		b.ctrl.OnPositionChanged(func(p astidrone.Position) {
			b.publishEvent(astidrone.PositionEvent, newPositionPayload(p))
		}),
		b.ctrl.OnProtocolError(func(e *astidrone.ProtocolError) {
			b.publishEvent(astidrone.ProtocolErrorEvent, newProtocolErrorPayload(e))
		}),
		b.ctrl.OnResponseReceived(func(r *astidrone.Response) {
			b.publish(b.responseTopic, newResponsePayload(r))
		}),
		b.ctrl.OnVideoStreamingStateChanged(func(v bool) {
			b.publishEvent(astidrone.VideoStreamingEvent, videoStreamingPayload{Streaming: v})
		}),
	} {
		defer u()
	}

	// Subscribe
	if err = b.subscribe(c); err != nil {
		err = errors.Wrap(err, "mqttbridge: subscribing failed")
		return
	}

	// Announce
	// Retained so that controllers starting afterwards get it
	if err = wait(c.Publish(b.announceTopic, qos, true, b.o.DroneID), b.o.AnnounceTimeout); err != nil {
		err = errors.Wrap(err, "mqttbridge: announcing failed")
		return
	}

	// Execute requests
	done := make(chan struct{})
	wg := &sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		b.executeRequests(done)
	}()
	defer wg.Wait()
	defer close(done)

	// Publish
	for {
		select {
		case <-b.stop:
			return
		case m := <-b.out:
			c.Publish(m.topic, qos, false, m.payload)
		}
	}
}

// Stop makes Serve return
func (b *Bridge) Stop() {
	select {
	case b.stop <- true:
	default:
	}
}

func (b *Bridge) subscribe(c Client) error {
	return wait(c.Subscribe(b.requestTopic, qos, func(_ mqtt.Client, msg mqtt.Message) {
		astilog.Debugf("mqttbridge: received request '%s'", msg.Payload())
		select {
		case b.requests <- string(msg.Payload()):
		default:
			astilog.Warn("mqttbridge: request queue is full, dropping request")
		}
	}), b.o.ConnectTimeout)
}

func (b *Bridge) executeRequests(done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case r := <-b.requests:
			b.execute(r)
		}
	}
}

func (b *Bridge) execute(r string) {
	// Parse
	c, err := astidrone.ParseCommand(r)
	if err != nil {
		b.publish(b.responseTopic, responsePayload{Command: strings.TrimSpace(r), Error: err.Error()})
		return
	}

	// Execute
	// Responses of sent commands are published once received
	if !b.ctrl.Execute(c) {
		b.publish(b.responseTopic, responsePayload{Command: c.String(), Error: "not sent in the current state"})
	}
}

func (b *Bridge) publishEvent(name string, v interface{}) {
	b.publish(b.eventsTopic+"/"+name, v)
}

func (b *Bridge) publish(topic string, v interface{}) {
	// Marshal
	p, err := json.Marshal(v)
	if err != nil {
		astilog.Error(errors.Wrapf(err, "mqttbridge: marshaling %T failed", v))
		return
	}

	// Queue
	select {
	case b.out <- message{payload: p, topic: topic}:
	default:
		astilog.Warn("mqttbridge: outgoing queue is full, dropping message")
	}
}

func wait(t mqtt.Token, timeout time.Duration) error {
	if timeout > 0 && !t.WaitTimeout(timeout) {
		return errors.New("mqttbridge: timed out")
	} else if timeout <= 0 {
		t.Wait()
	}
	return t.Error()
}
