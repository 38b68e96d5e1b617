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

	"github.com/angelmondragon/dealflow-backend/pkg/config"
	"github.com/angelmondragon/dealflow-backend/pkg/logger"
)

type resourceKind string

const (
	topicKind        resourceKind = "topics"
	subscriptionKind resourceKind = "subscriptions"
)

var errNotInitialized = errors.New("pubsub client not initialized")

// Client owns the Pub/Sub connection plus one publisher per topic. Publishers
// preserve order per ordering key, which the outbox sets to the aggregate.
type Client struct {
	conn    *pubsub.Client
	project string
	cfg     config.PubSubConfig

	mu         sync.Mutex
	publishers map[string]*pubsub.Publisher
}

// NewClient connects and verifies that every configured topic and
// subscription exists. Missing resources are a deploy error, not created here.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	project := strings.TrimSpace(gcp.ProjectID)
	if project == "" {
		return nil, errors.New("gcp project id is required")
	}
	conn, err := pubsub.NewClient(ctx, project, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c := &Client{conn: conn, project: project, cfg: cfg, publishers: map[string]*pubsub.Publisher{}}
	if err := c.verify(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"topics":        c.topics(),
			"subscriptions": c.subscriptions(),
		}), "pubsub client ready")
	}
	return c, nil
}

func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	if raw := strings.TrimSpace(gcp.CredentialsJSON); raw != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(raw))}
	}
	if path := strings.TrimSpace(gcp.ApplicationCredentials); path != "" {
		return []option.ClientOption{option.WithCredentialsFile(path)}
	}
	return nil
}

func (c *Client) topics() []string {
	return compact(c.cfg.DomainTopic, c.cfg.NotificationTopic)
}

func (c *Client) subscriptions() []string {
	return compact(c.cfg.NotificationSubscription, c.cfg.AnalyticsSubscription)
}

func (c *Client) verify(ctx context.Context) error {
	if c == nil || c.conn == nil {
		return errNotInitialized
	}
	topics := c.topics()
	if len(topics) == 0 {
		return errors.New("pubsub topic name is required")
	}
	for _, name := range topics {
		_, err := c.conn.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: c.resource(topicKind, name)})
		if err := lookupError(err, topicKind, name); err != nil {
			return err
		}
	}
	for _, name := range c.subscriptions() {
		_, err := c.conn.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: c.resource(subscriptionKind, name)})
		if err := lookupError(err, subscriptionKind, name); err != nil {
			return err
		}
	}
	return nil
}

func lookupError(err error, kind resourceKind, name string) error {
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("%s %q does not exist", strings.TrimSuffix(string(kind), "s"), name)
	default:
		return fmt.Errorf("checking %s %q: %w", strings.TrimSuffix(string(kind), "s"), name, err)
	}
}

// resource expands a short id to projects/<p>/<kind>/<id>. Full resource
// names pass through. Blank names yield "".
func (c *Client) resource(kind resourceKind, name string) string {
	name = strings.TrimSpace(name)
	if c == nil || name == "" {
		return ""
	}
	if strings.HasPrefix(name, "projects/") && strings.Contains(name, "/"+string(kind)+"/") {
		return name
	}
	if c.project == "" {
		return ""
	}
	return "projects/" + c.project + "/" + string(kind) + "/" + name
}

// Subscription returns a subscriber for name with flow control from config.
func (c *Client) Subscription(name string) *pubsub.Subscriber {
	full := c.resource(subscriptionKind, name)
	if full == "" || c.conn == nil {
		return nil
	}
	sub := c.conn.Subscriber(full)
	if c.cfg.MaxOutstandingMessages > 0 {
		sub.ReceiveSettings.MaxOutstandingMessages = c.cfg.MaxOutstandingMessages
	}
	return sub
}

func (c *Client) NotificationSubscription() *pubsub.Subscriber {
	return c.Subscription(c.cfg.NotificationSubscription)
}

func (c *Client) AnalyticsSubscription() *pubsub.Subscriber {
	return c.Subscription(c.cfg.AnalyticsSubscription)
}

// Publisher returns the shared ordered publisher for a topic.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	full := c.resource(topicKind, name)
	if full == "" || c.conn == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if pub, ok := c.publishers[full]; ok {
		return pub
	}
	pub := c.conn.Publisher(full)
	pub.EnableMessageOrdering = true
	c.publishers[full] = pub
	return pub
}

func (c *Client) Ping(ctx context.Context) error {
	return c.verify(ctx)
}

// Close flushes pending publishes before closing the connection.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	c.mu.Lock()
	for name, pub := range c.publishers {
		pub.Stop()
		delete(c.publishers, name)
	}
	c.mu.Unlock()
	return c.conn.Close()
}

func compact(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
