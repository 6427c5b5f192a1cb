package detector

// EventKind 事件类型
type EventKind string

const (
	// ImpactConfirmed 高置信跌倒：失重后在窗口内冲击
	ImpactConfirmed EventKind = "IMPACT_CONFIRMED"
	// PossibleFall 低置信跌倒（jerk 规则）
	PossibleFall EventKind = "POSSIBLE_FALL"
)

// Event Step 针对 Timestamp 处采样产生的事件
type Event struct {
	Kind           EventKind `json:"kind"`
	Timestamp      int64     `json:"timestamp"`
	Magnitude      float64   `json:"magnitude"`
	DeltaMagnitude float64   `json:"delta_magnitude"`
	// 仅 ImpactConfirmed 设置
	FreeFallStart int64 `json:"free_fall_start,omitempty"`
}

// FreeFallDurationMs 从进入失重到冲击的时长
func (e Event) FreeFallDurationMs() int64 {
	if e.Kind != ImpactConfirmed {
		return 0
	}
	return e.Timestamp - e.FreeFallStart
}
