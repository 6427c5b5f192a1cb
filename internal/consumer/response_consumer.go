package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/AnishVcode/senior-launcher/internal/models"

	"go.uber.org/zap"
)

// ResponseHandler 处理用户对跌倒通知的响应（由 AlarmEventService 实现）
type ResponseHandler interface {
	HandleResponse(ctx context.Context, deviceID string, resp models.UserResponse) error
}

// ResponseConsumer 用户响应消费者（launcher/+/response）
type ResponseConsumer struct {
	handler ResponseHandler
	timeout time.Duration
	logger  *zap.Logger
}

// NewResponseConsumer 创建响应消费者
func NewResponseConsumer(handler ResponseHandler, logger *zap.Logger) *ResponseConsumer {
	return &ResponseConsumer{
		handler: handler,
		timeout: 10 * time.Second,
		logger:  logger,
	}
}

// HandleMessage 处理 MQTT 响应消息
func (c *ResponseConsumer) HandleMessage(topic string, payload []byte) error {
	deviceID, err := DeviceFromTopic(topic)
	if err != nil {
		return err
	}

	var resp models.UserResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if resp.EventID == "" {
		return fmt.Errorf("event_id is required")
	}
	if resp.Action != models.ActionImOK && resp.Action != models.ActionGetHelp {
		return fmt.Errorf("invalid action: %s", resp.Action)
	}

	c.logger.Info("User responded to fall notification",
		zap.String("device_id", deviceID),
		zap.String("event_id", resp.EventID),
		zap.String("action", resp.Action),
	)

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	return c.handler.HandleResponse(ctx, deviceID, resp)
}
