package models

// Имена полей документов Firestore. Контракт задается клиентским приложением.
const (
	FieldRecipientToken = "recipientFcmToken"
	FieldTitle          = "title"
	FieldBody           = "body"
	FieldData           = "data"
	FieldDeviceToken    = "fcmToken"
)

// Значения по умолчанию и маркеры, которые ожидает клиентское Flutter-приложение.
const (
	DefaultTitle = "새 메시지"
	DefaultBody  = "메시지가 도착했습니다"

	ClickActionKey   = "click_action"
	ClickActionValue = "FLUTTER_NOTIFICATION_CLICK"

	AndroidPriorityHigh = "high"
	AndroidChannelChat  = "chat_messages"
	DefaultSound        = "default"
	DefaultAPNSBadge    = 1
)

// NotificationRequest - документ коллекции notificationRequests.
// Создается внешним продюсером, читается и удаляется обработчиком рассылки.
type NotificationRequest struct {
	ID             string            `json:"id" firestore:"-"`
	RecipientToken string            `json:"recipientFcmToken" firestore:"recipientFcmToken"`
	Title          string            `json:"title,omitempty" firestore:"title"`
	Body           string            `json:"body,omitempty" firestore:"body"`
	Data           map[string]string `json:"data,omitempty" firestore:"data"`
}

// UserProfile - документ коллекции users. Читается только fcmToken.
type UserProfile struct {
	ID          string `json:"id" firestore:"-"`
	DeviceToken string `json:"fcmToken,omitempty" firestore:"fcmToken"`
}

// PushMessage is the gateway-neutral message built from a NotificationRequest.
type PushMessage struct {
	Token   string
	Title   string
	Body    string
	Data    map[string]string
	Android AndroidOptions
	APNS    APNSOptions
}

type AndroidOptions struct {
	Priority  string
	Sound     string
	ChannelID string
}

type APNSOptions struct {
	Sound string
	Badge int
}

// TokenPrefix returns the start of a device token for logging.
func TokenPrefix(token string) string {
	const prefixLen = 10
	if len(token) <= prefixLen {
		return token
	}
	return token[:prefixLen] + "..."
}
