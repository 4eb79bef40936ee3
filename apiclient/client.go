package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// StatusError is a non-2xx response from the backend.
type StatusError struct {
	Code    int
	Message string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("apiclient: status %d: %s", e.Code, e.Message)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

// MessageRecord is a persisted chat message.
type MessageRecord struct {
	ID         string `json:"id,omitempty"`
	FromUserID string `json:"fromUserId"`
	ToUserID   string `json:"toUserId"`
	Message    string `json:"message"`
	Timestamp  int64  `json:"timestamp"`
}

// FriendRecord is one entry of the friend list.
type FriendRecord struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// Profile is the public profile of a user.
type Profile struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Bio      string `json:"bio,omitempty"`
}

// Client calls the chat backend's REST endpoints.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the given base URL. A nil http.Client gets a
// sensible default timeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{baseURL: baseURL, http: httpClient}
}

// PersistMessage stores a message in durable history.
func (c *Client) PersistMessage(ctx context.Context, rec MessageRecord) error {
	return c.do(ctx, http.MethodPost, "/messages", rec, nil)
}

// FetchHistory returns the persisted messages for a room, oldest first.
func (c *Client) FetchHistory(ctx context.Context, roomID string) ([]MessageRecord, error) {
	var out []MessageRecord
	path := "/messages/" + url.PathEscape(roomID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SendFriendRequest persists an outgoing friend request.
func (c *Client) SendFriendRequest(ctx context.Context, fromID, toID string) error {
	body := map[string]string{"fromUserId": fromID, "toUserId": toID}
	return c.do(ctx, http.MethodPost, "/friends/requests", body, nil)
}

// AcceptFriendRequest resolves a received request positively.
func (c *Client) AcceptFriendRequest(ctx context.Context, userID, friendID string) error {
	body := map[string]string{"userId": userID, "friendId": friendID}
	return c.do(ctx, http.MethodPost, "/friends/requests/accept", body, nil)
}

// RejectFriendRequest resolves a received request negatively.
func (c *Client) RejectFriendRequest(ctx context.Context, userID, friendID string) error {
	body := map[string]string{"userId": userID, "friendId": friendID}
	return c.do(ctx, http.MethodPost, "/friends/requests/reject", body, nil)
}

// FetchFriends returns the user's friend list.
func (c *Client) FetchFriends(ctx context.Context, userID string) ([]FriendRecord, error) {
	var out []FriendRecord
	path := "/friends/" + url.PathEscape(userID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// RemoveFriend deletes a friend relationship.
func (c *Client) RemoveFriend(ctx context.Context, userID, friendID string) error {
	path := "/friends/" + url.PathEscape(userID) + "/" + url.PathEscape(friendID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// FetchProfile returns a user's public profile.
func (c *Client) FetchProfile(ctx context.Context, userID string) (Profile, error) {
	var out Profile
	path := "/users/" + url.PathEscape(userID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return Profile{}, err
	}
	return out, nil
}

// do performs one JSON request. A non-2xx response becomes a StatusError
// carrying the backend's message when it sends one.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrapf(err, "marshal %s %s body", method, path)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrapf(err, "build %s %s", method, path)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		msg := resp.Status
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		logrus.WithFields(logrus.Fields{
			"function": "do",
			"method":   method,
			"path":     path,
			"status":   resp.StatusCode,
		}).Warn("Backend rejected request")
		return &StatusError{Code: resp.StatusCode, Message: msg}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.Wrapf(err, "decode %s %s response", method, path)
		}
	}
	return nil
}
