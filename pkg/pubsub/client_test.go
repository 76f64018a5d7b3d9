package pubsub

import (
	"context"
	"errors"
	"testing"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/millflow-backend/pkg/config"
)

func TestResourceName(t *testing.T) {
	cases := []struct {
		project, kind, name, want string
	}{
		{"mill", "topics", "mf-order-events", "projects/mill/topics/mf-order-events"},
		{"mill", "topics", "projects/other/topics/x", "projects/other/topics/x"},
		{"mill", "subscriptions", " sub ", "projects/mill/subscriptions/sub"},
		{"", "topics", "x", ""},
		{"mill", "topics", "", ""},
	}
	for _, tc := range cases {
		if got := resourceName(tc.project, tc.kind, tc.name); got != tc.want {
			t.Fatalf("resourceName(%q,%q,%q) = %q, want %q", tc.project, tc.kind, tc.name, got, tc.want)
		}
	}
}

func TestTopicNamesSkipsBlank(t *testing.T) {
	names := topicNames(config.PubSubConfig{OrdersTopic: "orders", ProductionTopic: " ", InventoryTopic: "inventory"})
	if len(names) != 2 || names[0] != "orders" || names[1] != "inventory" {
		t.Fatalf("unexpected names %v", names)
	}
}

func TestPublisherRejectsUnknownTopic(t *testing.T) {
	c := &Client{client: &pubsub.Client{}, projectID: "mill", topics: []string{"orders"}}
	if _, err := c.publisher("billing"); !errors.Is(err, ErrUnknownTopic) {
		t.Fatalf("expected unknown topic, got %v", err)
	}
	if !c.knows("orders") || c.knows("") {
		t.Fatal("topic membership mismatch")
	}
}

func TestClientOptionsPreferInlineCredentials(t *testing.T) {
	if got := clientOptions(config.GCPConfig{}); got != nil {
		t.Fatalf("expected default credentials, got %d options", len(got))
	}
	both := config.GCPConfig{CredentialsJSON: `{"type":"service_account"}`, ApplicationCredentials: "/tmp/key.json"}
	if got := clientOptions(both); len(got) != 1 {
		t.Fatalf("expected one option, got %d", len(got))
	}
}

func TestNewClientRequiresProject(t *testing.T) {
	if _, err := NewClient(context.Background(), config.GCPConfig{}, config.PubSubConfig{}, nil); err != errProjectIDRequired {
		t.Fatalf("expected project id error, got %v", err)
	}
}

func TestNilClientHandles(t *testing.T) {
	var c *Client
	if err := c.Publish(context.Background(), "orders", "k", []byte("{}"), nil); !errors.Is(err, errNotInitialized) {
		t.Fatalf("expected not initialized, got %v", err)
	}
	if err := c.Ping(context.Background()); err == nil {
		t.Fatal("expected ping error")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("unexpected close error %v", err)
	}
}
