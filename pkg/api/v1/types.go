// Package v1 contains the wire types of the NapCat-QCE HTTP and
// push-event APIs.
package v1

// TaskStatus represents the status of a remote export task
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusPaused    TaskStatus = "paused"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// IsTerminal reports whether no further transitions are expected from this status.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	}
	return false
}

// ChatType identifies the kind of conversation a peer refers to
type ChatType int

const (
	ChatTypePrivate ChatType = 1
	ChatTypeGroup   ChatType = 2
	ChatTypeTemp    ChatType = 3
)

// ExportFormat is the output format of an export task
type ExportFormat string

const (
	FormatTXT   ExportFormat = "TXT"
	FormatJSON  ExportFormat = "JSON"
	FormatHTML  ExportFormat = "HTML"
	FormatExcel ExportFormat = "EXCEL"
)

// Peer identifies a conversation target
type Peer struct {
	ChatType ChatType `json:"chatType"`
	PeerUID  string   `json:"peerUid"`
	GuildID  string   `json:"guildId,omitempty"`
}

// ExportTask is a snapshot of a server-tracked export job. The remote
// service is the only writer; clients hold read-only snapshots.
type ExportTask struct {
	ID           string     `json:"id"`
	Peer         Peer       `json:"peer"`
	SessionName  string     `json:"sessionName"`
	Status       TaskStatus `json:"status"`
	Progress     int        `json:"progress"`
	Format       string     `json:"format"`
	MessageCount int        `json:"messageCount"`
	FileName     string     `json:"fileName,omitempty"`
	FilePath     string     `json:"filePath,omitempty"`
	DownloadURL  string     `json:"downloadUrl,omitempty"`
	CreatedAt    string     `json:"createdAt,omitempty"`
	CompletedAt  string     `json:"completedAt,omitempty"`
	Error        string     `json:"error,omitempty"`
}

// Group holds summary information about a group chat
type Group struct {
	GroupCode   string `json:"groupCode"`
	GroupName   string `json:"groupName"`
	MemberCount int    `json:"memberCount"`
	MaxMember   int    `json:"maxMember,omitempty"`
	Remark      string `json:"remark,omitempty"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

// GroupMember holds information about one member of a group
type GroupMember struct {
	UID           string `json:"uid"`
	UIN           string `json:"uin"`
	Nick          string `json:"nick"`
	CardName      string `json:"cardName,omitempty"`
	Role          int    `json:"role"` // 0=member, 1=admin, 2=owner
	JoinTime      int64  `json:"joinTime,omitempty"`
	LastSpeakTime int64  `json:"lastSpeakTime,omitempty"`
	AvatarURL     string `json:"avatarUrl,omitempty"`
}

// Friend holds summary information about a friend
type Friend struct {
	UID        string `json:"uid"`
	UIN        string `json:"uin"`
	Nick       string `json:"nick"`
	Remark     string `json:"remark,omitempty"`
	AvatarURL  string `json:"avatarUrl,omitempty"`
	IsOnline   bool   `json:"isOnline"`
	Status     int    `json:"status"`
	CategoryID int    `json:"categoryId"`
}

// UserInfo holds detailed information about a user
type UserInfo struct {
	UID       string `json:"uid"`
	UIN       string `json:"uin"`
	Nick      string `json:"nick"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	LongNick  string `json:"longNick,omitempty"`
	Sex       int    `json:"sex,omitempty"`
	Age       int    `json:"age,omitempty"`
	QQLevel   int    `json:"qqLevel,omitempty"`
	VipFlag   bool   `json:"vipFlag"`
	SvipFlag  bool   `json:"svipFlag"`
	VipLevel  int    `json:"vipLevel"`
}

// MessageElement is one element of a message (text, image, ...)
type MessageElement struct {
	ElementType string         `json:"elementType"`
	Raw         map[string]any `json:"-"`
}

// Message is one chat message
type Message struct {
	MsgID          string           `json:"msgId"`
	MsgSeq         string           `json:"msgSeq"`
	MsgTime        int64            `json:"msgTime"`
	SenderUID      string           `json:"senderUid"`
	SenderUIN      string           `json:"senderUin,omitempty"`
	SendNickName   string           `json:"sendNickName,omitempty"`
	SendMemberName string           `json:"sendMemberName,omitempty"`
	Elements       []map[string]any `json:"elements,omitempty"`
}

// MessagePage is one page of fetched messages
type MessagePage struct {
	Messages    []Message `json:"messages"`
	TotalCount  int       `json:"totalCount"`
	CurrentPage int       `json:"currentPage"`
	TotalPages  int       `json:"totalPages"`
	HasNext     bool      `json:"hasNext"`
	CacheHit    bool      `json:"cacheHit"`
}

// ExportFile describes a finished export on the server's disk
type ExportFile struct {
	FileName     string `json:"fileName"`
	FilePath     string `json:"filePath"`
	RelativePath string `json:"relativePath"`
	Size         int64  `json:"size"`
	CreateTime   string `json:"createTime"`
	ModifyTime   string `json:"modifyTime"`
	ChatType     string `json:"chatType"`
	ChatID       string `json:"chatId"`
	DisplayName  string `json:"displayName,omitempty"`
	MessageCount int    `json:"messageCount,omitempty"`
	Format       string `json:"format"`
	IsScheduled  bool   `json:"isScheduled"`
}

// SystemInfo describes the running service and the logged-in account
type SystemInfo struct {
	Version     string  `json:"version"`
	Online      bool    `json:"online"`
	SelfUID     string  `json:"selfUid"`
	SelfUIN     string  `json:"selfUin"`
	SelfNick    string  `json:"selfNick"`
	AvatarURL   string  `json:"avatarUrl,omitempty"`
	NodeVersion string  `json:"nodeVersion,omitempty"`
	Platform    string  `json:"platform,omitempty"`
	Uptime      float64 `json:"uptime,omitempty"`
}

// MessageFilter narrows which messages an export or fetch covers
type MessageFilter struct {
	StartTime               int64    `json:"startTime,omitempty"` // Unix milliseconds
	EndTime                 int64    `json:"endTime,omitempty"`   // Unix milliseconds
	SenderUIDs              []string `json:"senderUids,omitempty"`
	Keywords                []string `json:"keywords,omitempty"`
	IncludeRecalled         bool     `json:"includeRecalled"`
	IncludeSystem           bool     `json:"includeSystem"`
	FilterPureImageMessages bool     `json:"filterPureImageMessages"`
}

// ExportOptions controls how the server renders an export
type ExportOptions struct {
	BatchSize               int    `json:"batchSize,omitempty"`
	IncludeResourceLinks    bool   `json:"includeResourceLinks"`
	IncludeSystemMessages   bool   `json:"includeSystemMessages"`
	FilterPureImageMessages bool   `json:"filterPureImageMessages"`
	PrettyFormat            bool   `json:"prettyFormat"`
	ExportAsZip             bool   `json:"exportAsZip"`
	OutputDir               string `json:"outputDir,omitempty"`
}
