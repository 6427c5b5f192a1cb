package detector

import "context"

// Stats Ingest 的采样计数
type Stats struct {
	Accepted    uint64 `json:"accepted"`
	RateLimited uint64 `json:"rate_limited"`
	Invalid     uint64 `json:"invalid"`
}

// Detector 单个设备的检测器
type Detector struct {
	cfg   Config
	state State
	stats Stats
}

// New 创建处于初始状态的检测器；为 0 的阈值使用默认值
func New(cfg Config) *Detector {
	return &Detector{cfg: cfg.WithDefaults()}
}

// Config 当前阈值
func (d *Detector) Config() Config { return d.cfg }

// State 当前状态（副本）
func (d *Detector) State() State { return d.state }

// Stats 采样计数（副本）
func (d *Detector) Stats() Stats { return d.stats }

// Reset 回到 NORMAL 并清空缓存
func (d *Detector) Reset() {
	d.state = State{}
}

// Ingest 处理一个采样：先经过 Check，再进入状态机
// 被拒绝的采样不改变状态，也不产生事件
func (d *Detector) Ingest(s Sample) []Event {
	events, _ := d.ingest(s)
	return events
}

func (d *Detector) ingest(s Sample) ([]Event, RejectReason) {
	switch r := Check(d.state, s, d.cfg); r {
	case RejectedInvalid:
		d.stats.Invalid++
		return nil, r
	case RejectedRateLimit:
		d.stats.RateLimited++
		return nil, r
	}

	d.stats.Accepted++
	var events []Event
	d.state, events = Step(d.state, s, d.cfg)
	return events, Accepted
}

// Run 按顺序消费 samples，直到 channel 关闭或 ctx 结束
// emit 在 Run 所在 goroutine 中调用，必须非阻塞
func (d *Detector) Run(ctx context.Context, samples <-chan Sample, emit func(Event)) {
	d.RunObserved(ctx, samples, emit, nil)
}

// RunObserved 同 Run，observe 接收每个采样的 Check 结果
func (d *Detector) RunObserved(ctx context.Context, samples <-chan Sample, emit func(Event), observe func(RejectReason)) {
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-samples:
			if !ok {
				return
			}
			events, reason := d.ingest(s)
			if observe != nil {
				observe(reason)
			}
			for _, ev := range events {
				emit(ev)
			}
		}
	}
}
