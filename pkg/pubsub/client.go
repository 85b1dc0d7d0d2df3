package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNotInitialized    = errors.New("pubsub client not initialized")
	errNothingToVerify   = errors.New("pubsub client needs topics or a subscription")
)

// Options lists the resources a binary depends on. The outbox publisher passes
// the topics its routing table can emit to; the analytics worker passes its
// subscription and the topic that subscription must be attached to.
type Options struct {
	Topics            []string
	Subscription      string
	SubscriptionTopic string
}

type admin interface {
	topic(ctx context.Context, name string) (*pubsubpb.Topic, error)
	subscription(ctx context.Context, name string) (*pubsubpb.Subscription, error)
}

type Client struct {
	client    *pubsub.Client
	admin     admin
	projectID string
	opts      Options
	logg      *logger.Logger
}

// NewClient creates a Pub/Sub v2 client and verifies every resource in opts.
func NewClient(ctx context.Context, gcp config.GCPConfig, opts Options, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}
	psClient, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	c := &Client{
		client:    psClient,
		admin:     gcpAdmin{psClient},
		projectID: projectID,
		opts:      opts,
		logg:      logg,
	}
	if err := c.verify(ctx); err != nil {
		_ = psClient.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "topics", opts.Topics), "pubsub client initialized")
	}
	return c, nil
}

func (c *Client) verify(ctx context.Context) error {
	if len(c.opts.Topics) == 0 && c.opts.Subscription == "" {
		return errNothingToVerify
	}
	for _, name := range c.opts.Topics {
		if _, err := c.admin.topic(ctx, c.topicName(name)); err != nil {
			return describe("topic", name, err)
		}
	}
	if c.opts.Subscription == "" {
		return nil
	}

	sub, err := c.admin.subscription(ctx, c.subscriptionName(c.opts.Subscription))
	if err != nil {
		return describe("subscription", c.opts.Subscription, err)
	}
	if want := c.topicName(c.opts.SubscriptionTopic); want != "" && sub.GetTopic() != want {
		return fmt.Errorf("subscription %q reads %q, expected %q", c.opts.Subscription, sub.GetTopic(), want)
	}
	// Order lifecycle events are published with the order id as ordering key.
	if !sub.GetEnableMessageOrdering() && c.logg != nil {
		c.logg.Warn(c.logg.WithField(ctx, "subscription", c.opts.Subscription), "pubsub.subscription_unordered")
	}
	return nil
}

func describe(kind, name string, err error) error {
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("%s %q does not exist", kind, name)
	}
	return fmt.Errorf("checking %s %q: %w", kind, name, err)
}

// Subscription returns a subscriber for an ID or full resource name.
func (c *Client) Subscription(name string) *pubsub.Subscriber {
	if c == nil || c.client == nil {
		return nil
	}
	full := c.subscriptionName(name)
	if full == "" {
		return nil
	}
	return c.client.Subscriber(full)
}

// Publisher returns a publisher for an ID or full resource name.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	full := c.topicName(name)
	if full == "" {
		return nil
	}
	return c.client.Publisher(full)
}

// Ping rechecks the first resource verified at startup.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.admin == nil {
		return errNotInitialized
	}
	if c.opts.Subscription != "" {
		_, err := c.admin.subscription(ctx, c.subscriptionName(c.opts.Subscription))
		return err
	}
	if len(c.opts.Topics) > 0 {
		_, err := c.admin.topic(ctx, c.topicName(c.opts.Topics[0]))
		return err
	}
	return errNothingToVerify
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *Client) subscriptionName(name string) string {
	return resourceName(c.projectID, "subscriptions", name)
}

func (c *Client) topicName(name string) string {
	return resourceName(c.projectID, "topics", name)
}

func resourceName(projectID, kind, name string) string {
	n := strings.TrimSpace(name)
	if n == "" {
		return ""
	}
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/"+kind+"/") {
		return n
	}
	if projectID == "" {
		return ""
	}
	return "projects/" + projectID + "/" + kind + "/" + n
}

type gcpAdmin struct{ client *pubsub.Client }

func (a gcpAdmin) topic(ctx context.Context, name string) (*pubsubpb.Topic, error) {
	return a.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: name})
}

func (a gcpAdmin) subscription(ctx context.Context, name string) (*pubsubpb.Subscription, error) {
	return a.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: name})
}
