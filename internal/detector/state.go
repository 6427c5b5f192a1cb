package detector

// Phase 失重阶段
type Phase string

const (
	PhaseNormal   Phase = "NORMAL"
	PhaseFreeFall Phase = "FREE_FALL"
)

// State 采样之间保留的全部状态；零值即初始状态（NORMAL、无采样、缓存为 0）
// FreeFallStartTime 仅在 InFreeFall 为 true 时有意义
type State struct {
	LastSampleTime    int64   `json:"last_sample_time"`
	LastX             float64 `json:"last_x"`
	LastY             float64 `json:"last_y"`
	LastZ             float64 `json:"last_z"`
	HasSample         bool    `json:"has_sample"`
	InFreeFall        bool    `json:"in_free_fall"`
	FreeFallStartTime int64   `json:"free_fall_start_time"`
}

// Phase 当前阶段
func (s State) Phase() Phase {
	if s.InFreeFall {
		return PhaseFreeFall
	}
	return PhaseNormal
}
