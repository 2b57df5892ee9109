package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"dryclean/internal/logger"
	"dryclean/internal/models"
)

// Notifier enqueues a notification event for a downstream consumer to
// deliver. Implementations are fire-and-forget: they log failures and
// never propagate them into order or payment flows.
type Notifier interface {
	Notify(ctx context.Context, event models.NotificationEvent)
}

// KafkaNotifier publishes notification events to a Kafka topic.
type KafkaNotifier struct {
	Writer  *kafka.Writer
	Timeout time.Duration
	Logger  *logger.Logger
}

func NewKafkaNotifier(brokers []string, topic string, timeout time.Duration, log *logger.Logger) *KafkaNotifier {
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers: brokers,
		Topic:   topic,
	})
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &KafkaNotifier{Writer: writer, Timeout: timeout, Logger: log}
}

// Notify publishes in a goroutine so callers never wait on the broker.
// Events are keyed by user so one customer's notifications stay ordered.
func (n *KafkaNotifier) Notify(ctx context.Context, event models.NotificationEvent) {
	value, err := json.Marshal(event)
	if err != nil {
		n.Logger.Error("NOTIFY", fmt.Sprintf("Failed to marshal notification event: %v", err))
		return
	}

	go func() {
		publishCtx, cancel := context.WithTimeout(context.Background(), n.Timeout)
		defer cancel()

		err := n.Writer.WriteMessages(publishCtx, kafka.Message{
			Key:   []byte(event.UserID),
			Value: value,
		})
		if err != nil {
			n.Logger.Error("NOTIFY", fmt.Sprintf("Failed to publish notification for user %s: %v", event.UserID, err))
			return
		}
		n.Logger.LogNotify(event.Channel, event.UserID, event.Title)
	}()
}

func (n *KafkaNotifier) Close() error {
	return n.Writer.Close()
}

// LogNotifier is the fallback when Kafka is disabled: events go to the
// log and nowhere else.
type LogNotifier struct {
	Logger *logger.Logger
}

func (n *LogNotifier) Notify(ctx context.Context, event models.NotificationEvent) {
	n.Logger.LogNotify(event.Channel, event.UserID, fmt.Sprintf("%s - %s", event.Title, event.Body))
}

// EnsureTopicsExist creates the notification topics if they are missing.
// Called once on startup.
func EnsureTopicsExist(brokers []string, topics []string, log *logger.Logger) error {
	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		return err
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return err
	}
	controllerConn, err := kafka.Dial("tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	if err != nil {
		return err
	}
	defer controllerConn.Close()

	for _, topic := range topics {
		err = controllerConn.CreateTopics(kafka.TopicConfig{
			Topic:             topic,
			NumPartitions:     1,
			ReplicationFactor: 1,
		})
		if err != nil {
			if err.Error() == "kafka server: topic already exists" {
				log.Info("KAFKA", fmt.Sprintf("Topic %s already exists", topic))
				continue
			}
			log.Warn("KAFKA", fmt.Sprintf("Error creating topic %s: %v", topic, err))
		} else {
			log.Info("KAFKA", fmt.Sprintf("Created topic: %s", topic))
		}
	}

	// Give the brokers a moment to settle topic metadata
	time.Sleep(1 * time.Second)
	return nil
}
