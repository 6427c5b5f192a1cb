package mqtt

import (
	"fmt"
	"sync"
	"time"

	"github.com/AnishVcode/senior-launcher/common/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const (
	connectTimeout   = 10 * time.Second
	operationTimeout = 5 * time.Second
	disconnectQuiesc = 250 // ms
)

// MessageHandler 消息处理函数类型；返回的错误只记录日志
type MessageHandler func(topic string, payload []byte) error

type subscription struct {
	qos     byte
	handler mqtt.MessageHandler
}

// Client MQTT客户端封装
// clean session 下 broker 不保留订阅，重连后由 OnConnect 重新订阅
type Client struct {
	client mqtt.Client
	config *config.MQTTConfig
	logger *zap.Logger

	mu   sync.Mutex
	subs map[string]subscription
}

// NewClient 创建MQTT客户端并连接
func NewClient(cfg *config.MQTTConfig, logger *zap.Logger) (*Client, error) {
	c := &Client{
		config: cfg,
		logger: logger,
		subs:   make(map[string]subscription),
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetCleanSession(true).
		SetConnectTimeout(connectTimeout).
		SetWriteTimeout(operationTimeout).
		// 同一主题的消息按到达顺序回调（采样数据依赖顺序）
		SetOrderMatters(true).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn("MQTT connection lost",
				zap.String("broker", cfg.Broker),
				zap.Error(err),
			)
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	c.client = mqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("timed out connecting to MQTT broker %s", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", cfg.Broker, err)
	}

	logger.Info("MQTT connected",
		zap.String("broker", cfg.Broker),
		zap.String("client_id", cfg.ClientID),
	)
	return c, nil
}

// onConnect 首次连接时 subs 为空；重连后恢复全部订阅
func (c *Client) onConnect(client mqtt.Client) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for topic, sub := range c.subs {
		token := client.Subscribe(topic, sub.qos, sub.handler)
		if token.WaitTimeout(operationTimeout) && token.Error() == nil {
			c.logger.Info("MQTT resubscribed", zap.String("topic", topic))
			continue
		}
		c.logger.Error("MQTT resubscribe failed",
			zap.String("topic", topic),
			zap.Error(token.Error()),
		)
	}
}

func wait(token mqtt.Token, op string) error {
	if !token.WaitTimeout(operationTimeout) {
		return fmt.Errorf("%s: timed out after %s", op, operationTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Subscribe 订阅主题
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	cb := func(_ mqtt.Client, msg mqtt.Message) {
		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			c.logger.Warn("Error handling MQTT message",
				zap.String("topic", msg.Topic()),
				zap.Error(err),
			)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := wait(c.client.Subscribe(topic, qos, cb), "subscribe "+topic); err != nil {
		return err
	}
	c.subs[topic] = subscription{qos: qos, handler: cb}
	return nil
}

// Publish 发布消息
func (c *Client) Publish(topic string, qos byte, retained bool, payload []byte) error {
	return wait(c.client.Publish(topic, qos, retained, payload), "publish "+topic)
}

// Unsubscribe 取消订阅
func (c *Client) Unsubscribe(topics ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, t := range topics {
		delete(c.subs, t)
	}
	return wait(c.client.Unsubscribe(topics...), "unsubscribe")
}

// Disconnect 断开连接
func (c *Client) Disconnect() {
	c.client.Disconnect(disconnectQuiesc)
}

// IsConnected 检查连接状态
func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}
