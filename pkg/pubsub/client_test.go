package pubsub

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/dealflow-backend/pkg/config"
)

func TestResource(t *testing.T) {
	c := &Client{project: "proj"}
	require.Equal(t, "projects/proj/topics/df-domain", c.resource(topicKind, " df-domain "))
	require.Equal(t, "projects/other/topics/t", c.resource(topicKind, "projects/other/topics/t"))
	require.Equal(t, "projects/proj/subscriptions/sub", c.resource(subscriptionKind, "sub"))
	require.Equal(t, "projects/proj/subscriptions/projects/other/topics/t", c.resource(subscriptionKind, "projects/other/topics/t"),
		"a topic path is not a subscription path")
	require.Empty(t, c.resource(subscriptionKind, "  "))
	require.Empty(t, (&Client{}).resource(topicKind, "t"))

	var nilClient *Client
	require.Empty(t, nilClient.resource(topicKind, "x"))
}

func TestConfiguredNamesSkipBlank(t *testing.T) {
	c := &Client{cfg: config.PubSubConfig{
		DomainTopic:              "df-domain",
		NotificationTopic:        " ",
		NotificationSubscription: " df-notifications-sub ",
	}}
	require.Equal(t, []string{"df-domain"}, c.topics())
	require.Equal(t, []string{"df-notifications-sub"}, c.subscriptions())
}

func TestLookupError(t *testing.T) {
	require.NoError(t, lookupError(nil, topicKind, "t"))
	require.EqualError(t, lookupError(status.Error(codes.NotFound, "gone"), subscriptionKind, "s"), `subscription "s" does not exist`)

	denied := status.Error(codes.PermissionDenied, "nope")
	err := lookupError(denied, topicKind, "t")
	require.True(t, errors.Is(err, denied))
	require.Contains(t, err.Error(), `checking topic "t"`)
}

func TestUnconnectedClient(t *testing.T) {
	c := &Client{project: "proj"}
	require.Nil(t, c.Publisher("t"))
	require.Nil(t, c.Subscription("s"))
	require.ErrorIs(t, c.Ping(t.Context()), errNotInitialized)
	require.NoError(t, c.Close())
}

func TestClientOptions(t *testing.T) {
	require.Len(t, clientOptions(config.GCPConfig{CredentialsJSON: "{}"}), 1)
	require.Empty(t, clientOptions(config.GCPConfig{}))
}
