package domain

// EventType はディスパッチャが扱うイベント種別.
type EventType string

const (
	EventInstall           EventType = "install"
	EventActivate          EventType = "activate"
	EventFetch             EventType = "fetch"
	EventPush              EventType = "push"
	EventNotificationClick EventType = "notificationclick"
)

// Event はホスト側から届く型付きイベント.
type Event interface {
	Type() EventType
}

type InstallEvent struct{}

type ActivateEvent struct{}

// FetchEvent は横取りしたリクエスト1件.
type FetchEvent struct {
	Request *Request
}

// PushEvent はプッシュメッセージのペイロードを運ぶ.
type PushEvent struct {
	Data []byte
}

// NotificationClickEvent は通知のクリック.
type NotificationClickEvent struct {
	NotificationID string
}

func (InstallEvent) Type() EventType           { return EventInstall }
func (ActivateEvent) Type() EventType          { return EventActivate }
func (FetchEvent) Type() EventType             { return EventFetch }
func (PushEvent) Type() EventType              { return EventPush }
func (NotificationClickEvent) Type() EventType { return EventNotificationClick }

// Result はイベント処理の結果 (レスポンスや副作用の記述).
type Result interface {
	EventType() EventType
}

// InstallResult はプリキャッシュの結果.
type InstallResult struct {
	Partition string `json:"partition"`
	Cached    int    `json:"cached"`
}

// ActivateResult は削除したパーティションとクレームしたクライアント数.
type ActivateResult struct {
	Deleted []string `json:"deleted"`
	Failed  []string `json:"failed,omitempty"`
	Claimed int      `json:"claimed"`
}

// FetchResult はフェッチイベントへの応答.
// Done はバックグラウンド処理 (再検証と期限切れ処理) が落ち着いた時点で閉じる.
type FetchResult struct {
	Response *Response
	Rule     string
	Strategy Strategy
	Done     <-chan struct{}
}

// Wait はバックグラウンド処理の完了を待つ.
func (r *FetchResult) Wait() {
	if r.Done != nil {
		<-r.Done
	}
}

// PushResult は表示した通知. Shown が false の場合は表示をスキップした.
type PushResult struct {
	Notification *Notification `json:"notification,omitempty"`
	Shown        bool          `json:"shown"`
}

// NotificationClickResult はフォーカスまたは新規に開いたクライアント.
type NotificationClickResult struct {
	Client *Client `json:"client"`
}

func (*InstallResult) EventType() EventType           { return EventInstall }
func (*ActivateResult) EventType() EventType          { return EventActivate }
func (*FetchResult) EventType() EventType             { return EventFetch }
func (*PushResult) EventType() EventType              { return EventPush }
func (*NotificationClickResult) EventType() EventType { return EventNotificationClick }
