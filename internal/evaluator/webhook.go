package evaluator

import (
	"context"
	"fmt"
	"time"

	"github.com/AnishVcode/senior-launcher/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// EmergencyNotifier 紧急联系人通知
type EmergencyNotifier interface {
	NotifyEmergency(ctx context.Context, event *models.AlarmEvent, reason string) error
}

// EmergencyPayload webhook 请求体
type EmergencyPayload struct {
	Reason string             `json:"reason"`
	Alarm  *models.AlarmEvent `json:"alarm"`
}

// WebhookClient 紧急 webhook 客户端
type WebhookClient struct {
	httpClient *resty.Client
	url        string
	logger     *zap.Logger
}

// NewWebhookClient 创建 webhook 客户端
func NewWebhookClient(url string, logger *zap.Logger) *WebhookClient {
	client := resty.New().
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(3 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &WebhookClient{
		httpClient: client,
		url:        url,
		logger:     logger,
	}
}

// NotifyEmergency POST 报警到 webhook
func (c *WebhookClient) NotifyEmergency(ctx context.Context, event *models.AlarmEvent, reason string) error {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(EmergencyPayload{Reason: reason, Alarm: event}).
		Post(c.url)
	if err != nil {
		return fmt.Errorf("failed to call emergency webhook: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("emergency webhook returned status %d", resp.StatusCode())
	}

	c.logger.Info("Emergency webhook notified",
		zap.String("event_id", event.EventID),
		zap.String("device_id", event.DeviceID),
		zap.Int("status_code", resp.StatusCode()),
	)
	return nil
}
