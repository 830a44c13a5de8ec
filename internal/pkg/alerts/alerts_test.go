package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlackNotifierPostsWebhook(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewSlackNotifier(Config{WebhookURL: srv.URL, Channel: "#collections"})
	err := n.Notify(context.Background(), Alert{
		Kind: KindComplianceBlocked, TenantID: 1, AccountID: 42, CampaignID: 7,
		Summary: "sms contact blocked by TCPA/channel_consent",
	})
	require.NoError(t, err)

	assert.Equal(t, "#collections", body["channel"])
	assert.Equal(t, "sms contact blocked by TCPA/channel_consent", body["text"])
	assert.NotEmpty(t, body["blocks"])
}

func TestSlackNotifierReportsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	err := NewSlackNotifier(Config{WebhookURL: srv.URL}).Notify(context.Background(), Alert{Summary: "x"})
	assert.Error(t, err)
}

func TestMessageMovesOverflowToAttachment(t *testing.T) {
	details := make([]string, maxDetailBlocks+3)
	for i := range details {
		details[i] = fmt.Sprintf("account %d: smtp timeout", i)
	}
	msg := NewSlackNotifier(Config{}).message(Alert{Kind: KindCampaignFailures, Summary: "3 failures", Details: details})

	// header, summary, fields, divider + detail blocks
	assert.Len(t, msg.Blocks.BlockSet, 4+maxDetailBlocks)
	require.Len(t, msg.Attachments, 1)
	assert.Contains(t, msg.Attachments[0].Text, fmt.Sprintf("account %d", maxDetailBlocks+2))
}

func TestNewWithoutWebhookLogsOnly(t *testing.T) {
	n := New(Config{})
	_, ok := n.(LogNotifier)
	assert.True(t, ok)
	assert.NoError(t, n.Notify(context.Background(), Alert{Kind: KindSuspensionFailed}))
}
