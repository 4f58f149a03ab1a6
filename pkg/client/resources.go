package client

import (
	"context"
	"fmt"
	"net/url"

	v1 "github.com/shuakami/napcat-qce-go/pkg/api/v1"
)

// GroupsAPI wraps the group endpoints.
type GroupsAPI struct {
	c *Client
}

// List returns all groups the account is a member of.
func (a *GroupsAPI) List(ctx context.Context, forceRefresh bool) ([]v1.Group, error) {
	params := url.Values{}
	params.Set("page", "1")
	params.Set("limit", "999")
	params.Set("forceRefresh", boolParam(forceRefresh))

	var result struct {
		Groups []v1.Group `json:"groups"`
	}
	if err := a.c.get(ctx, "/api/groups", params, &result); err != nil {
		return nil, err
	}
	return result.Groups, nil
}

// Get returns details of one group.
func (a *GroupsAPI) Get(ctx context.Context, groupCode string, forceRefresh bool) (*v1.Group, error) {
	params := url.Values{}
	params.Set("forceRefresh", boolParam(forceRefresh))

	var group v1.Group
	if err := a.c.get(ctx, "/api/groups/"+groupCode, params, &group); err != nil {
		return nil, err
	}
	return &group, nil
}

// Members returns the member list of a group.
func (a *GroupsAPI) Members(ctx context.Context, groupCode string, forceRefresh bool) ([]v1.GroupMember, error) {
	params := url.Values{}
	params.Set("forceRefresh", boolParam(forceRefresh))

	var members []v1.GroupMember
	if err := a.c.get(ctx, fmt.Sprintf("/api/groups/%s/members", groupCode), params, &members); err != nil {
		return nil, err
	}
	return members, nil
}

// FriendsAPI wraps the friend endpoints.
type FriendsAPI struct {
	c *Client
}

// List returns all friends.
func (a *FriendsAPI) List(ctx context.Context) ([]v1.Friend, error) {
	params := url.Values{}
	params.Set("page", "1")
	params.Set("limit", "999")

	var result struct {
		Friends []v1.Friend `json:"friends"`
	}
	if err := a.c.get(ctx, "/api/friends", params, &result); err != nil {
		return nil, err
	}
	return result.Friends, nil
}

// Get returns details of one friend.
func (a *FriendsAPI) Get(ctx context.Context, uid string, noCache bool) (*v1.Friend, error) {
	params := url.Values{}
	params.Set("no_cache", boolParam(noCache))

	var friend v1.Friend
	if err := a.c.get(ctx, "/api/friends/"+uid, params, &friend); err != nil {
		return nil, err
	}
	return &friend, nil
}

// UsersAPI wraps the user endpoints.
type UsersAPI struct {
	c *Client
}

// Get returns detailed information about a user.
func (a *UsersAPI) Get(ctx context.Context, uid string, noCache bool) (*v1.UserInfo, error) {
	params := url.Values{}
	params.Set("no_cache", boolParam(noCache))

	var info v1.UserInfo
	if err := a.c.get(ctx, "/api/users/"+uid, params, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// ExportFilesAPI wraps the finished-export file endpoints.
type ExportFilesAPI struct {
	c *Client
}

// List returns all export files on the server.
func (a *ExportFilesAPI) List(ctx context.Context) ([]v1.ExportFile, error) {
	var result struct {
		Files []v1.ExportFile `json:"files"`
	}
	if err := a.c.get(ctx, "/api/exports/files", nil, &result); err != nil {
		return nil, err
	}
	return result.Files, nil
}

// Info returns details of one export file.
func (a *ExportFilesAPI) Info(ctx context.Context, fileName string) (*v1.ExportFile, error) {
	var file v1.ExportFile
	if err := a.c.get(ctx, fmt.Sprintf("/api/exports/files/%s/info", fileName), nil, &file); err != nil {
		return nil, err
	}
	return &file, nil
}

// DownloadURL returns the URL a finished export can be fetched from.
func (a *ExportFilesAPI) DownloadURL(fileName string, isScheduled bool) string {
	prefix := "downloads"
	if isScheduled {
		prefix = "scheduled-downloads"
	}
	return fmt.Sprintf("%s/%s/%s", a.c.baseURL, prefix, fileName)
}

// SystemAPI wraps the system endpoints.
type SystemAPI struct {
	c *Client
}

// Info returns information about the service and logged-in account.
func (a *SystemAPI) Info(ctx context.Context) (*v1.SystemInfo, error) {
	var info v1.SystemInfo
	if err := a.c.get(ctx, "/api/system/info", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Health performs a health check against the service.
func (a *SystemAPI) Health(ctx context.Context) error {
	return a.c.get(ctx, "/health", nil, nil)
}

// MessagesAPI wraps the message fetch and export endpoints.
type MessagesAPI struct {
	c *Client
}

type fetchRequest struct {
	Peer      v1.Peer           `json:"peer"`
	Filter    *v1.MessageFilter `json:"filter,omitempty"`
	BatchSize int               `json:"batchSize"`
	Page      int               `json:"page"`
	Limit     int               `json:"limit"`
}

// Fetch returns one page of messages for a conversation.
func (a *MessagesAPI) Fetch(ctx context.Context, peer v1.Peer, filter *v1.MessageFilter, page, limit int) (*v1.MessagePage, error) {
	if limit <= 0 {
		limit = 50
	}
	req := fetchRequest{
		Peer:      peer,
		Filter:    filter,
		BatchSize: 5000,
		Page:      page,
		Limit:     limit,
	}
	var result v1.MessagePage
	if err := a.c.post(ctx, "/api/messages/fetch", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// FetchAll walks every page of a conversation, invoking fn per page.
// Iteration stops when fn returns false or an error occurs.
func (a *MessagesAPI) FetchAll(ctx context.Context, peer v1.Peer, filter *v1.MessageFilter, fn func(page *v1.MessagePage) bool) error {
	for page := 1; ; page++ {
		result, err := a.Fetch(ctx, peer, filter, page, 100)
		if err != nil {
			return err
		}
		if len(result.Messages) > 0 && !fn(result) {
			return nil
		}
		if !result.HasNext {
			return nil
		}
	}
}

type exportRequest struct {
	Peer        v1.Peer           `json:"peer"`
	Format      string            `json:"format"`
	Filter      *v1.MessageFilter `json:"filter,omitempty"`
	Options     *v1.ExportOptions `json:"options,omitempty"`
	SessionName string            `json:"sessionName,omitempty"`
}

// ExportRequest describes one export submission.
type ExportRequest struct {
	Peer        v1.Peer
	Format      v1.ExportFormat
	Filter      *v1.MessageFilter
	Options     *v1.ExportOptions
	SessionName string
}

// Export creates an export task on the server and returns its initial snapshot.
func (a *MessagesAPI) Export(ctx context.Context, req ExportRequest) (*v1.ExportTask, error) {
	format := string(req.Format)
	if format == "" {
		format = string(v1.FormatJSON)
	}
	body := exportRequest{
		Peer:        req.Peer,
		Format:      format,
		Filter:      req.Filter,
		Options:     req.Options,
		SessionName: req.SessionName,
	}
	var task v1.ExportTask
	if err := a.c.post(ctx, "/api/messages/export", body, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// QuickExport creates an export task and waits for it to complete.
func (a *MessagesAPI) QuickExport(ctx context.Context, req ExportRequest, opts WaitOptions) (*v1.ExportTask, error) {
	task, err := a.Export(ctx, req)
	if err != nil {
		return nil, err
	}
	return a.c.Tasks.WaitForCompletion(ctx, task.ID, opts)
}
