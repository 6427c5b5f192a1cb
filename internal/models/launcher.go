package models

// FallNotificationID 跌倒通知 ID（取消通知时使用）
const FallNotificationID = 1002

// HapticPattern 跌倒提醒振动模式（毫秒：等待/振动交替）
var HapticPattern = []int64{0, 500, 200, 500, 200, 500}

// 用户响应动作
const (
	ActionImOK    = "im_ok"
	ActionGetHelp = "get_help"
)

// HapticCommand 振动命令（launcher/{device}/haptic）
type HapticCommand struct {
	Pattern []int64 `json:"pattern"`
	Repeat  int     `json:"repeat"`
	Reason  string  `json:"reason"`
}

// NotificationAction 通知按钮
type NotificationAction struct {
	Action string `json:"action"`
	Label  string `json:"label"`
}

// FallNotification 跌倒通知（launcher/{device}/notify）
type FallNotification struct {
	ID         int                  `json:"id"`
	EventID    string               `json:"event_id,omitempty"`
	Title      string               `json:"title,omitempty"`
	Text       string               `json:"text,omitempty"`
	Priority   string               `json:"priority,omitempty"`
	Category   string               `json:"category,omitempty"`
	Actions    []NotificationAction `json:"actions,omitempty"`
	AutoCancel bool                 `json:"auto_cancel,omitempty"`
	Cancel     bool                 `json:"cancel,omitempty"`
}

// EmergencyLaunch 启动紧急流程（launcher/{device}/emergency）
type EmergencyLaunch struct {
	EventID      string `json:"event_id"`
	FallDetected bool   `json:"fall_detected"`
	Reason       string `json:"reason"`
}

// UserResponse 用户对跌倒通知的响应（launcher/{device}/response）
type UserResponse struct {
	EventID string `json:"event_id"`
	Action  string `json:"action"`
}

// NewFallNotification 构建跌倒通知
func NewFallNotification(eventID string) FallNotification {
	return FallNotification{
		ID:       FallNotificationID,
		EventID:  eventID,
		Title:    "Fall Detected!",
		Text:     "Are you okay? Tap to respond or emergency will be called.",
		Priority: "max",
		Category: "alarm",
		Actions: []NotificationAction{
			{Action: ActionImOK, Label: "I'm OK"},
			{Action: ActionGetHelp, Label: "Get Help"},
		},
		AutoCancel: true,
	}
}

// NewCancelNotification 构建取消通知消息
func NewCancelNotification(eventID string) FallNotification {
	return FallNotification{
		ID:      FallNotificationID,
		EventID: eventID,
		Cancel:  true,
	}
}
