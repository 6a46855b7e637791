package notification

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// Subscriber pulls Gmail notifications from a Pub/Sub subscription. Every
// message is acknowledged: the cursor, not redelivery, guarantees no change
// is missed.
type Subscriber struct {
	client    *pubsub.Client
	syncer    Syncer
	topicName string
	subName   string
}

func NewSubscriber(ctx context.Context, projectID, topicName, subName, credentialsFile string, syncer Syncer) (*Subscriber, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}

	topicName = shortName(topicName)
	if topicName == "" {
		topicName = "gmail-updates"
	}
	subName = shortName(subName)
	if subName == "" {
		subName = topicName + "-sub"
	}

	return &Subscriber{client: client, syncer: syncer, topicName: topicName, subName: subName}, nil
}

// shortName strips a "projects/p/topics/" style prefix.
func shortName(name string) string {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return name[i+1:]
	}
	return name
}

func (s *Subscriber) ensureSubscription(ctx context.Context) (*pubsub.Subscription, error) {
	sub := s.client.Subscription(s.subName)
	exists, err := sub.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("checking subscription: %w", err)
	}
	if exists {
		return sub, nil
	}

	topic := s.client.Topic(s.topicName)
	topicExists, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("checking topic: %w", err)
	}
	if !topicExists {
		return nil, fmt.Errorf("topic %s does not exist", s.topicName)
	}

	sub, err = s.client.CreateSubscription(ctx, s.subName, pubsub.SubscriptionConfig{
		Topic:       topic,
		AckDeadline: 60 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("creating subscription: %w", err)
	}
	log.Printf("[PubSub] Created subscription: %s", s.subName)
	return sub, nil
}

// Start blocks receiving messages until ctx is cancelled.
func (s *Subscriber) Start(ctx context.Context) error {
	sub, err := s.ensureSubscription(ctx)
	if err != nil {
		return err
	}
	sub.ReceiveSettings.MaxOutstandingMessages = 16

	log.Printf("[PubSub] Listening for messages on subscription: %s", s.subName)
	err = sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		defer msg.Ack()
		n, err := DecodeGmailNotification(msg.Data)
		if err != nil {
			log.Printf("[PubSub] Ignoring message %s: %v", msg.ID, err)
			return
		}
		status := handleGmail(ctx, s.syncer, n)
		log.Printf("[PubSub] %s historyId=%s: %s", n.EmailAddress, n.HistoryID, status)
	})
	if err != nil {
		return fmt.Errorf("receiving messages: %w", err)
	}
	return nil
}

func (s *Subscriber) Close() error {
	return s.client.Close()
}
