package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/millflow-backend/pkg/config"
	"github.com/angelmondragon/millflow-backend/pkg/logger"
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNoTopics          = errors.New("pubsub topic names are required")
	errNotInitialized    = errors.New("pubsub client not initialized")

	// ErrUnknownTopic is returned for topics outside the configured set.
	ErrUnknownTopic = errors.New("pubsub topic not configured")
)

// Client publishes outbox events to the configured topics. Publishers are
// created once per topic with message ordering on, so events for one
// aggregate arrive in the order they were written.
type Client struct {
	client    *pubsub.Client
	projectID string
	topics    []string

	mu         sync.Mutex
	publishers map[string]*pubsub.Publisher
}

// NewClient connects to Pub/Sub and checks that every configured topic exists.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(gcp.ProjectID) == "" {
		return nil, errProjectIDRequired
	}
	topics := topicNames(cfg)
	if len(topics) == 0 {
		return nil, errNoTopics
	}

	psClient, err := pubsub.NewClient(ctx, gcp.ProjectID, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c := &Client{
		client:     psClient,
		projectID:  gcp.ProjectID,
		topics:     topics,
		publishers: make(map[string]*pubsub.Publisher, len(topics)),
	}
	if err := c.Ping(ctx); err != nil {
		_ = psClient.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithField(ctx, "topics", topics), "pubsub client initialized")
	}
	return c, nil
}

// clientOptions prefers inline JSON credentials, then a credentials file.
// With neither, the library falls back to application default credentials
// or PUBSUB_EMULATOR_HOST.
func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	switch {
	case strings.TrimSpace(gcp.CredentialsJSON) != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(gcp.CredentialsJSON))}
	case strings.TrimSpace(gcp.ApplicationCredentials) != "":
		return []option.ClientOption{option.WithCredentialsFile(gcp.ApplicationCredentials)}
	}
	return nil
}

func topicNames(cfg config.PubSubConfig) []string {
	var names []string
	for _, name := range []string{cfg.OrdersTopic, cfg.ProductionTopic, cfg.InventoryTopic} {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			names = append(names, trimmed)
		}
	}
	return names
}

// Ping checks that every configured topic exists.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errNotInitialized
	}
	for _, name := range c.topics {
		_, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: resourceName(c.projectID, "topics", name)})
		switch {
		case status.Code(err) == codes.NotFound:
			return fmt.Errorf("topic %q does not exist", name)
		case err != nil:
			return fmt.Errorf("checking topic %q: %w", name, err)
		}
	}
	return nil
}

// Publish sends data to topic and waits for the server ack. A non-empty
// orderingKey keeps messages with the same key in order.
func (c *Client) Publish(ctx context.Context, topic, orderingKey string, data []byte, attrs map[string]string) error {
	pub, err := c.publisher(topic)
	if err != nil {
		return err
	}
	_, err = pub.Publish(ctx, &pubsub.Message{
		Data:        data,
		Attributes:  attrs,
		OrderingKey: orderingKey,
	}).Get(ctx)
	if err != nil && orderingKey != "" {
		// A failed ordered publish pauses the key until resumed.
		pub.ResumePublish(orderingKey)
	}
	return err
}

func (c *Client) publisher(topic string) (*pubsub.Publisher, error) {
	if c == nil || c.client == nil {
		return nil, errNotInitialized
	}
	topic = strings.TrimSpace(topic)
	if !c.knows(topic) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTopic, topic)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if pub, ok := c.publishers[topic]; ok {
		return pub, nil
	}
	pub := c.client.Publisher(resourceName(c.projectID, "topics", topic))
	pub.EnableMessageOrdering = true
	c.publishers[topic] = pub
	return pub, nil
}

func (c *Client) knows(topic string) bool {
	for _, name := range c.topics {
		if name == topic {
			return true
		}
	}
	return false
}

// Close flushes pending messages and closes the connection.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	c.mu.Lock()
	for _, pub := range c.publishers {
		pub.Stop()
	}
	c.publishers = map[string]*pubsub.Publisher{}
	c.mu.Unlock()
	return c.client.Close()
}

// resourceName expands a short ID into projects/<p>/<kind>/<id>.
func resourceName(projectID, kind, name string) string {
	n := strings.TrimSpace(name)
	if n == "" {
		return ""
	}
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/"+kind+"/") {
		return n
	}
	p := strings.TrimSpace(projectID)
	if p == "" {
		return ""
	}
	return fmt.Sprintf("projects/%s/%s/%s", p, kind, n)
}
