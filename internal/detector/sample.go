package detector

import "math"

// GravityEarth 标准重力加速度 m/s²
const GravityEarth = 9.80665

// Sample 一次加速度读数；Timestamp 为单调时钟毫秒，X/Y/Z 单位 m/s²
type Sample struct {
	Timestamp int64   `json:"timestamp"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Z         float64 `json:"z"`
}

// Magnitude 以 g 为单位的合加速度（静止时约 1.0）
func Magnitude(x, y, z float64) float64 {
	return math.Sqrt(x*x+y*y+z*z) / GravityEarth
}

// DeltaMagnitude 相邻两次读数差向量的幅值（g）
func DeltaMagnitude(x, y, z, lastX, lastY, lastZ float64) float64 {
	return Magnitude(x-lastX, y-lastY, z-lastZ)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// valid 每个轴都是有限值且在 ±limit 内
func (s Sample) valid(limit float64) bool {
	for _, v := range [3]float64{s.X, s.Y, s.Z} {
		if !finite(v) || math.Abs(v) > limit {
			return false
		}
	}
	return true
}
