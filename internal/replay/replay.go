package replay

import (
	"github.com/AnishVcode/senior-launcher/internal/detector"
)

// Result 一次回放的结果
type Result struct {
	Events []detector.Event `json:"events"`
	Stats  detector.Stats   `json:"stats"`
	Final  detector.State   `json:"final_state"`
}

// Run 用新的检测器按顺序回放；轴值先乘以 scale（g 单位的记录用 detector.GravityEarth）
func Run(cfg detector.Config, samples []detector.Sample, scale float64) Result {
	if scale == 0 {
		scale = 1
	}
	d := detector.New(cfg)

	res := Result{Events: []detector.Event{}}
	for _, s := range samples {
		s.X *= scale
		s.Y *= scale
		s.Z *= scale
		res.Events = append(res.Events, d.Ingest(s)...)
	}
	res.Stats = d.Stats()
	res.Final = d.State()
	return res
}

// Count 按事件类型计数
func (r Result) Count() map[detector.EventKind]int {
	counts := map[detector.EventKind]int{}
	for _, ev := range r.Events {
		counts[ev.Kind]++
	}
	return counts
}
