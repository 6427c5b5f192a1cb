package consumer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/AnishVcode/senior-launcher/internal/config"
	"github.com/AnishVcode/senior-launcher/internal/detector"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// SampleDispatcher 按设备投递采样（由 MonitorManager 实现）
// 返回 false 表示采样被丢弃（设备禁用或队列已满）
type SampleDispatcher interface {
	Dispatch(deviceID string, sample detector.Sample) bool
}

// MalformedObserver 记录无法解析的消息（指标）
type MalformedObserver interface {
	Sample(result string)
}

// SampleConsumer 加速度采样消费者（MQTT launcher/+/accel 或 NATS accel.*）
type SampleConsumer struct {
	config     *config.Config
	dispatcher SampleDispatcher
	observer   MalformedObserver
	logger     *zap.Logger
}

// NewSampleConsumer 创建采样消费者；observer 可为 nil
func NewSampleConsumer(
	cfg *config.Config,
	dispatcher SampleDispatcher,
	observer MalformedObserver,
	logger *zap.Logger,
) *SampleConsumer {
	return &SampleConsumer{
		config:     cfg,
		dispatcher: dispatcher,
		observer:   observer,
		logger:     logger,
	}
}

// samplePayload 单个采样或批量采样
type samplePayload struct {
	Timestamp *int64          `json:"timestamp"`
	X         *float64        `json:"x"`
	Y         *float64        `json:"y"`
	Z         *float64        `json:"z"`
	Samples   []samplePayload `json:"samples"`
}

func (p samplePayload) toSample() (detector.Sample, error) {
	if p.Timestamp == nil || p.X == nil || p.Y == nil || p.Z == nil {
		return detector.Sample{}, fmt.Errorf("sample requires timestamp, x, y and z")
	}
	return detector.Sample{Timestamp: *p.Timestamp, X: *p.X, Y: *p.Y, Z: *p.Z}, nil
}

// DecodeSamples 解析采样消息：{"timestamp","x","y","z"} 或 {"samples":[...]}
func DecodeSamples(payload []byte) ([]detector.Sample, error) {
	var p samplePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sample payload: %w", err)
	}

	if p.Samples != nil {
		samples := make([]detector.Sample, 0, len(p.Samples))
		for i, item := range p.Samples {
			s, err := item.toSample()
			if err != nil {
				return nil, fmt.Errorf("samples[%d]: %w", i, err)
			}
			samples = append(samples, s)
		}
		return samples, nil
	}

	s, err := p.toSample()
	if err != nil {
		return nil, err
	}
	return []detector.Sample{s}, nil
}

// DeviceFromTopic 从 MQTT 主题提取设备 ID（launcher/{device}/accel）
func DeviceFromTopic(topic string) (string, error) {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 || parts[1] == "" {
		return "", fmt.Errorf("invalid topic format: %s", topic)
	}
	return parts[1], nil
}

// DeviceFromSubject 从 NATS subject 提取设备 ID（最后一段）
func DeviceFromSubject(subject string) (string, error) {
	idx := strings.LastIndex(subject, ".")
	if idx < 0 || idx == len(subject)-1 {
		return "", fmt.Errorf("invalid subject format: %s", subject)
	}
	return subject[idx+1:], nil
}

// HandleMessage 处理 MQTT 采样消息（签名与 mqtt.MessageHandler 一致）
func (c *SampleConsumer) HandleMessage(topic string, payload []byte) error {
	deviceID, err := DeviceFromTopic(topic)
	if err != nil {
		c.malformed()
		return err
	}
	return c.handle(deviceID, payload)
}

// HandleNATS 处理 NATS 采样消息
func (c *SampleConsumer) HandleNATS(msg *nats.Msg) {
	deviceID, err := DeviceFromSubject(msg.Subject)
	if err == nil {
		err = c.handle(deviceID, msg.Data)
	} else {
		c.malformed()
	}
	if err != nil {
		c.logger.Warn("Error handling NATS message",
			zap.String("subject", msg.Subject),
			zap.Error(err),
		)
	}
}

// SubscribeNATS 订阅 NATS 采样 subject（同一订阅内消息按顺序回调）
func (c *SampleConsumer) SubscribeNATS(nc *nats.Conn) (*nats.Subscription, error) {
	sub, err := nc.Subscribe(c.config.Fall.Topics.NATSAccel, c.HandleNATS)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to subject %s: %w", c.config.Fall.Topics.NATSAccel, err)
	}
	return sub, nil
}

func (c *SampleConsumer) handle(deviceID string, payload []byte) error {
	samples, err := DecodeSamples(payload)
	if err != nil {
		c.malformed()
		return fmt.Errorf("device %s: %w", deviceID, err)
	}

	dropped := 0
	for _, s := range samples {
		if !c.dispatcher.Dispatch(deviceID, s) {
			dropped++
		}
	}
	if dropped > 0 {
		c.logger.Debug("Samples not dispatched",
			zap.String("device_id", deviceID),
			zap.Int("dropped", dropped),
			zap.Int("total", len(samples)),
		)
	}
	return nil
}

func (c *SampleConsumer) malformed() {
	if c.observer != nil {
		c.observer.Sample("malformed")
	}
}
