package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	pkglog "github.com/weiawesome/wes-io-watchparty/pkg/log"
)

const (
	topicRoomEvents   = "watchparty-events"
	topicChatMessages = "chat-messages"

	defaultPartitions = 4
	defaultGroupID    = "watchparty"
	pollTimeoutMs     = 500
)

// route is where a bus channel lands in Kafka: one topic per channel family,
// keyed by room so each room keeps its order on a single partition.
type route struct {
	topic string
	key   string
}

// parseChannel maps bus channel names onto Kafka routes.
//
//	"watchparty:room:ABCD12:events" → watchparty-events / ABCD12
//	"chat:room:42:messages"         → chat-messages / 42
//	"watchparty:room:*:events"      → watchparty-events / *
func parseChannel(channel string) (route, error) {
	parts := strings.Split(channel, ":")
	if len(parts) != 4 || parts[1] != "room" || parts[2] == "" {
		return route{}, fmt.Errorf("kafka pubsub: unroutable channel %q", channel)
	}

	switch parts[0] + ":" + parts[3] {
	case "watchparty:events":
		return route{topic: topicRoomEvents, key: parts[2]}, nil
	case "chat:messages":
		return route{topic: topicChatMessages, key: parts[2]}, nil
	default:
		return route{}, fmt.Errorf("kafka pubsub: unroutable channel %q", channel)
	}
}

type kafkaSubscription struct {
	consumer *kafka.Consumer
	cancel   context.CancelFunc
}

// KafkaPubSub carries bus events over Kafka. A pattern subscription reads the
// whole topic; a channel subscription reads the topic and keeps its room key.
type KafkaPubSub struct {
	producer *kafka.Producer
	config   KafkaConfig

	mu   sync.Mutex
	subs map[string]*kafkaSubscription // channel or pattern → consumer

	reportsDone chan struct{}
}

func NewKafkaPubSub(cfg KafkaConfig) (*KafkaPubSub, error) {
	if cfg.Partitions <= 0 {
		cfg.Partitions = defaultPartitions
	}
	if cfg.GroupID == "" {
		cfg.GroupID = defaultGroupID
	}

	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": cfg.Brokers,
		"acks":              "1",
		"linger.ms":         5,
		"compression.type":  "snappy",
	})
	if err != nil {
		return nil, fmt.Errorf("kafka pubsub: producer: %w", err)
	}

	k := &KafkaPubSub{
		producer:    p,
		config:      cfg,
		subs:        make(map[string]*kafkaSubscription),
		reportsDone: make(chan struct{}),
	}
	go k.watchDeliveries()

	if err := k.createTopics(); err != nil {
		l := pkglog.L()
		l.Warn().Err(err).Msg("kafka pubsub: topic setup failed, assuming topics exist")
	}
	return k, nil
}

func (k *KafkaPubSub) createTopics() error {
	admin, err := kafka.NewAdminClientFromProducer(k.producer)
	if err != nil {
		return err
	}
	defer admin.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	specs := []kafka.TopicSpecification{
		{Topic: topicRoomEvents, NumPartitions: k.config.Partitions, ReplicationFactor: 1},
		{Topic: topicChatMessages, NumPartitions: k.config.Partitions, ReplicationFactor: 1},
	}
	results, err := admin.CreateTopics(ctx, specs)
	if err != nil {
		return err
	}

	l := pkglog.L()
	for _, r := range results {
		switch r.Error.Code() {
		case kafka.ErrNoError, kafka.ErrTopicAlreadyExists:
		default:
			l.Warn().Str("topic", r.Topic).Str("error", r.Error.String()).Msg("kafka pubsub: create topic")
		}
	}
	return nil
}

func (k *KafkaPubSub) watchDeliveries() {
	defer close(k.reportsDone)
	l := pkglog.L()
	for e := range k.producer.Events() {
		if m, ok := e.(*kafka.Message); ok && m.TopicPartition.Error != nil {
			l.Error().Err(m.TopicPartition.Error).Str("key", string(m.Key)).Msg("kafka pubsub: delivery failed")
		}
	}
}

func (k *KafkaPubSub) Publish(ctx context.Context, channel string, event *Event) error {
	rt, err := parseChannel(channel)
	if err != nil {
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("kafka pubsub: encode %s: %w", event.Type, err)
	}

	return k.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &rt.topic, Partition: kafka.PartitionAny},
		Key:            []byte(rt.key),
		Value:          data,
		Timestamp:      event.Timestamp,
	}, nil)
}

func (k *KafkaPubSub) Subscribe(ctx context.Context, channel string) (<-chan *Event, error) {
	rt, err := parseChannel(channel)
	if err != nil {
		return nil, err
	}
	// Keyed readers get their own group so they never split partitions with
	// the pattern readers of the same process.
	group := k.config.GroupID + "-" + sanitizeGroupID(channel)
	return k.consume(ctx, channel, rt.topic, group, rt.key)
}

func (k *KafkaPubSub) SubscribePattern(ctx context.Context, pattern string) (<-chan *Event, error) {
	rt, err := parseChannel(pattern)
	if err != nil {
		return nil, err
	}
	return k.consume(ctx, pattern, rt.topic, k.config.GroupID, "")
}

func (k *KafkaPubSub) consume(ctx context.Context, subKey, topic, group, key string) (<-chan *Event, error) {
	c, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":       k.config.Brokers,
		"group.id":                group,
		"auto.offset.reset":       "latest",
		"enable.auto.commit":      true,
		"auto.commit.interval.ms": 5000,
	})
	if err != nil {
		return nil, fmt.Errorf("kafka pubsub: consumer: %w", err)
	}
	if err := c.Subscribe(topic, nil); err != nil {
		c.Close()
		return nil, fmt.Errorf("kafka pubsub: subscribe %s: %w", topic, err)
	}

	subCtx, cancel := context.WithCancel(ctx)

	k.mu.Lock()
	if prev, ok := k.subs[subKey]; ok {
		prev.cancel()
		prev.consumer.Close()
	}
	k.subs[subKey] = &kafkaSubscription{consumer: c, cancel: cancel}
	k.mu.Unlock()

	eventCh := make(chan *Event, subscriberBuffer)
	go k.poll(subCtx, topic, c, key, eventCh)
	return eventCh, nil
}

// poll forwards messages until ctx ends or the consumer hits a fatal error.
// An empty key accepts every message on the topic.
func (k *KafkaPubSub) poll(ctx context.Context, topic string, c *kafka.Consumer, key string, eventCh chan<- *Event) {
	defer close(eventCh)
	l := pkglog.L()

	for ctx.Err() == nil {
		switch e := c.Poll(pollTimeoutMs).(type) {
		case *kafka.Message:
			if key != "" && string(e.Key) != key {
				continue
			}
			if !forward(ctx, "kafka", topic, e.Value, eventCh) {
				return
			}
		case kafka.Error:
			l.Error().
				Str("topic", topic).
				Int("code", int(e.Code())).
				Bool("fatal", e.IsFatal()).
				Msg(e.String())
			if e.IsFatal() {
				return
			}
		}
	}
}

func (k *KafkaPubSub) Unsubscribe(ctx context.Context, channel string) error {
	k.mu.Lock()
	sub, ok := k.subs[channel]
	delete(k.subs, channel)
	k.mu.Unlock()

	if !ok {
		return nil
	}
	sub.cancel()
	return sub.consumer.Close()
}

// Close stops every consumer, flushes pending produces and waits for the
// delivery report loop to drain.
func (k *KafkaPubSub) Close() error {
	k.mu.Lock()
	for key, sub := range k.subs {
		sub.cancel()
		sub.consumer.Close()
		delete(k.subs, key)
	}
	k.mu.Unlock()

	k.producer.Flush(5000)
	k.producer.Close()
	<-k.reportsDone
	return nil
}

var groupIDRegexp = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

func sanitizeGroupID(s string) string {
	return groupIDRegexp.ReplaceAllString(s, "-")
}
