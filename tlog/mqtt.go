package tlog

import (
	"fmt"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/gclink/log2"
	"github.com/temoto/spq"
)

const (
	DefaultPublishTimeout = 10 * time.Second
	DefaultRetryDelay     = 3 * time.Second
	DefaultKeepAlive      = 60 * time.Second
)

type Publisher interface {
	Publish(topic string, payload []byte) error
}

type MQTTConfig struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	TopicPrefix    string
	StorePath      string // paho in-flight store, memory if empty
	KeepAlive      time.Duration
	PublishTimeout time.Duration
}

// MQTTClient is Publisher over paho client with QoS 1.
type MQTTClient struct {
	log     *log2.Log
	m       mqtt.Client
	timeout time.Duration
}

func NewMQTTClient(c MQTTConfig, log *log2.Log) (*MQTTClient, error) {
	if c.Broker == "" {
		return nil, errors.NotValidf("mqtt broker empty")
	}
	mqtt.ERROR = log
	mqtt.CRITICAL = log

	self := &MQTTClient{log: log, timeout: c.PublishTimeout}
	if self.timeout == 0 {
		self.timeout = DefaultPublishTimeout
	}
	keepAlive := c.KeepAlive
	if keepAlive == 0 {
		keepAlive = DefaultKeepAlive
	}
	clientID := c.ClientID
	if clientID == "" {
		clientID = "gclink"
	}
	opt := mqtt.NewClientOptions().
		AddBroker(c.Broker).
		SetClientID(clientID).
		SetCleanSession(true).
		SetKeepAlive(keepAlive).
		SetPingTimeout(keepAlive / 2).
		SetOrderMatters(true).
		SetConnectRetryInterval(DefaultRetryDelay).
		SetConnectRetry(true).
		SetAutoReconnect(true).
		SetOnConnectHandler(func(mqtt.Client) { log.Infof("mqtt %s connected", c.Broker) }).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) { log.Errorf("mqtt %s connection lost err=%v", c.Broker, err) })
	if c.Username != "" {
		opt.SetCredentialsProvider(func() (string, string) { return c.Username, c.Password })
	}
	if c.StorePath != "" {
		opt.SetStore(mqtt.NewFileStore(c.StorePath))
	}
	self.m = mqtt.NewClient(opt)
	// with ConnectRetry token completes only on success, do not wait
	if tok := self.m.Connect(); tok.Error() != nil {
		return nil, errors.Annotatef(tok.Error(), "mqtt connect %s", c.Broker)
	}
	return self, nil
}

func (self *MQTTClient) Publish(topic string, payload []byte) error {
	tok := self.m.Publish(topic, 1, false, payload)
	if !tok.WaitTimeout(self.timeout) {
		return errors.Timeoutf("mqtt publish topic=%s", topic)
	}
	return errors.Annotatef(tok.Error(), "mqtt publish topic=%s", topic)
}

func (self *MQTTClient) Close() {
	self.m.Disconnect(250)
}

// Topic for session frames.
func Topic(prefix, session string) string {
	if prefix == "" {
		prefix = "gclink"
	}
	return fmt.Sprintf("%s/%s/tlog", prefix, SafeName(session))
}

type MQTTStat struct {
	Queued    uint32
	Published uint32
	Failed    uint32
}

// MQTTExporter spools records into persistent queue,
// worker publishes them in order and deletes only after success.
type MQTTExporter struct {
	alive *alive.Alive
	log   *log2.Log
	pub   Publisher
	q     *spq.Queue
	topic string
	retry time.Duration
	stat  MQTTStat
}

// NewMQTT opens spool at path. spq.OnlyForTesting selects memory storage.
func NewMQTT(pub Publisher, topic string, spoolPath string, retry time.Duration, log *log2.Log) (*MQTTExporter, error) {
	if pub == nil {
		return nil, errors.NotValidf("tlog mqtt publisher nil")
	}
	q, err := spq.Open(spoolPath)
	if err != nil {
		return nil, errors.Annotatef(err, "tlog spool open path=%s", spoolPath)
	}
	if retry == 0 {
		retry = DefaultRetryDelay
	}
	self := &MQTTExporter{
		alive: alive.NewAlive(),
		log:   log,
		pub:   pub,
		q:     q,
		topic: topic,
		retry: retry,
	}
	self.alive.Add(1)
	go self.worker()
	return self, nil
}

func (self *MQTTExporter) Topic() string { return self.topic }

func (self *MQTTExporter) Write(t time.Time, frame []byte) error {
	if err := self.q.Push(Record(t, frame)); err != nil {
		return errors.Annotate(err, "tlog spool push")
	}
	atomic.AddUint32(&self.stat.Queued, 1)
	return nil
}

// Close stops worker, unsent records stay in spool.
func (self *MQTTExporter) Close() error {
	self.alive.Stop()
	err := self.q.Close()
	self.alive.Wait()
	return errors.Annotate(err, "tlog spool close")
}

func (self *MQTTExporter) Stat() MQTTStat {
	return MQTTStat{
		Queued:    atomic.LoadUint32(&self.stat.Queued),
		Published: atomic.LoadUint32(&self.stat.Published),
		Failed:    atomic.LoadUint32(&self.stat.Failed),
	}
}

func (self *MQTTExporter) worker() {
	defer self.alive.Done()
	stopch := self.alive.StopChan()
	for {
		box, err := self.q.Peek()
		switch err {
		case nil:
			if err = self.pub.Publish(self.topic, box.Bytes()); err != nil {
				atomic.AddUint32(&self.stat.Failed, 1)
				self.log.Errorf("tlog publish topic=%s err=%v", self.topic, err)
				if !self.pause(stopch) {
					return
				}
				continue
			}
			atomic.AddUint32(&self.stat.Published, 1)
			if err = self.q.Delete(box); err != nil && err != spq.ErrClosed {
				self.log.Errorf("tlog spool delete err=%v", err)
			}

		case spq.ErrClosed:
			if self.alive.IsRunning() {
				self.log.Errorf("tlog spool closed unexpectedly")
			}
			return

		default:
			self.log.Errorf("tlog spool err=%v", err)
			if !self.pause(stopch) {
				return
			}
		}
	}
}

func (self *MQTTExporter) pause(stopch <-chan struct{}) bool {
	select {
	case <-stopch:
		return false
	case <-time.After(self.retry):
		return true
	}
}
