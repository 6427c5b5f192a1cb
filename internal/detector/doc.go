// Package detector 单设备加速度流上的跌倒检测状态机
//
// 检测器 = 状态（State）+ 纯函数转移（Step）。
// Check 丢弃非有限值、超量程以及间隔过短的采样，其余采样进入失重/冲击判断。
// 事件：
//   - ImpactConfirmed：失重后在 fall window 内出现高 g 冲击
//   - PossibleFall：相邻采样变化过大（jerk），与失重阶段无关
//
// Detector 不是并发安全的，必须由单个 goroutine 按到达顺序喂入；Run 负责从 channel 读取。
package detector
