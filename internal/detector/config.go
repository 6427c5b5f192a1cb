package detector

import (
	"errors"
	"fmt"
	"math"
)

// 默认阈值（幅值单位为 g）
const (
	DefaultFallThreshold       = 2.0
	DefaultImpactThreshold     = 35.0
	DefaultFallWindowMs        = 300
	DefaultJerkThreshold       = 25.0
	DefaultMinSampleIntervalMs = 20
	// DefaultMaxAbsAcceleration 单轴上限，m/s²（约 200 g）
	DefaultMaxAbsAcceleration = 2000.0
)

// Config 检测阈值
type Config struct {
	FallThreshold       float64 `json:"fall_threshold"`
	ImpactThreshold     float64 `json:"impact_threshold"`
	FallWindowMs        int64   `json:"fall_window_ms"`
	JerkThreshold       float64 `json:"jerk_threshold"`
	MinSampleIntervalMs int64   `json:"min_sample_interval_ms"`
	MaxAbsAcceleration  float64 `json:"max_abs_acceleration"`
}

// DefaultConfig launcher 出厂阈值
func DefaultConfig() Config {
	return Config{
		FallThreshold:       DefaultFallThreshold,
		ImpactThreshold:     DefaultImpactThreshold,
		FallWindowMs:        DefaultFallWindowMs,
		JerkThreshold:       DefaultJerkThreshold,
		MinSampleIntervalMs: DefaultMinSampleIntervalMs,
		MaxAbsAcceleration:  DefaultMaxAbsAcceleration,
	}
}

var errNonPositive = errors.New("must be a positive finite number")

// Validate 返回第一个不合法的阈值
// min_sample_interval_ms 至少为 1：0 在 WithDefaults 中表示"未设置"
func (c Config) Validate() error {
	checks := []struct {
		name string
		v    float64
	}{
		{"fall_threshold", c.FallThreshold},
		{"impact_threshold", c.ImpactThreshold},
		{"fall_window_ms", float64(c.FallWindowMs)},
		{"jerk_threshold", c.JerkThreshold},
		{"max_abs_acceleration", c.MaxAbsAcceleration},
	}
	for _, ch := range checks {
		if !(ch.v > 0) || math.IsInf(ch.v, 0) {
			return fmt.Errorf("%s %v: %w", ch.name, ch.v, errNonPositive)
		}
	}
	if c.MinSampleIntervalMs < 1 {
		return fmt.Errorf("min_sample_interval_ms %d: must be at least 1", c.MinSampleIntervalMs)
	}
	if c.ImpactThreshold <= c.FallThreshold {
		return fmt.Errorf("impact_threshold %v must be greater than fall_threshold %v",
			c.ImpactThreshold, c.FallThreshold)
	}
	return nil
}

// WithDefaults 用 DefaultConfig 填充为 0 的字段
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.FallThreshold == 0 {
		c.FallThreshold = d.FallThreshold
	}
	if c.ImpactThreshold == 0 {
		c.ImpactThreshold = d.ImpactThreshold
	}
	if c.FallWindowMs == 0 {
		c.FallWindowMs = d.FallWindowMs
	}
	if c.JerkThreshold == 0 {
		c.JerkThreshold = d.JerkThreshold
	}
	if c.MinSampleIntervalMs == 0 {
		c.MinSampleIntervalMs = d.MinSampleIntervalMs
	}
	if c.MaxAbsAcceleration == 0 {
		c.MaxAbsAcceleration = d.MaxAbsAcceleration
	}
	return c
}
