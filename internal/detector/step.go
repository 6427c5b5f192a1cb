package detector

// RejectReason Check 拒绝采样的原因
type RejectReason int

const (
	Accepted RejectReason = iota
	// RejectedInvalid 轴值非有限或超量程
	RejectedInvalid
	// RejectedRateLimit 距上一个接受的采样不足 MinSampleIntervalMs（含时间倒退）
	RejectedRateLimit
)

func (r RejectReason) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case RejectedInvalid:
		return "invalid"
	case RejectedRateLimit:
		return "rate_limited"
	default:
		return "unknown"
	}
}

// Check 采样进入 Step 之前的过滤，不修改状态
func Check(st State, s Sample, cfg Config) RejectReason {
	if !s.valid(cfg.MaxAbsAcceleration) {
		return RejectedInvalid
	}
	if st.HasSample && s.Timestamp-st.LastSampleTime < cfg.MinSampleIntervalMs {
		return RejectedRateLimit
	}
	return Accepted
}

// Step 处理一个已接受的采样，返回新状态和事件（ImpactConfirmed 在 PossibleFall 之前）
// 每个采样按固定顺序执行：
//  1. 不在失重中且 mag < FallThreshold：进入失重
//  2. 失重中且 mag > ImpactThreshold：在 FallWindowMs 内则确认冲击，无论如何都退出失重
//  3. 失重超过 FallWindowMs：静默退出失重
//  4. dmag > JerkThreshold：产生 PossibleFall，与阶段无关
func Step(st State, s Sample, cfg Config) (State, []Event) {
	var events []Event
	t := s.Timestamp

	mag := Magnitude(s.X, s.Y, s.Z)
	dmag := DeltaMagnitude(s.X, s.Y, s.Z, st.LastX, st.LastY, st.LastZ)

	if mag < cfg.FallThreshold && !st.InFreeFall {
		st.InFreeFall = true
		st.FreeFallStartTime = t
	}

	if st.InFreeFall && mag > cfg.ImpactThreshold {
		if t-st.FreeFallStartTime < cfg.FallWindowMs {
			events = append(events, Event{
				Kind:           ImpactConfirmed,
				Timestamp:      t,
				Magnitude:      mag,
				DeltaMagnitude: dmag,
				FreeFallStart:  st.FreeFallStartTime,
			})
		}
		st.InFreeFall = false
	}

	if st.InFreeFall && t-st.FreeFallStartTime > cfg.FallWindowMs {
		st.InFreeFall = false
	}

	if dmag > cfg.JerkThreshold {
		events = append(events, Event{
			Kind:           PossibleFall,
			Timestamp:      t,
			Magnitude:      mag,
			DeltaMagnitude: dmag,
		})
	}

	st.LastX, st.LastY, st.LastZ = s.X, s.Y, s.Z
	st.LastSampleTime = t
	st.HasSample = true

	return st, events
}
