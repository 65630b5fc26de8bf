// Package ember provides a client for the Ember chat API.
package ember

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

// Client is an Ember API client.
type Client struct {
	BaseURL    string
	ConfigDir  string
	UserID     string
	Token      string
	HTTPClient *http.Client
}

// Config holds saved credentials.
type Config struct {
	UserID string `json:"user_id"`
	Token  string `json:"token"`
}

// NewClient creates a new Ember client.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	configDir := os.Getenv("EMBER_CONFIG")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".ember")
	}

	c := &Client{
		BaseURL:    baseURL,
		ConfigDir:  configDir,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}

	_ = c.LoadConfig()
	return c
}

// LoadConfig loads saved credentials from disk.
func (c *Client) LoadConfig() error {
	data, err := os.ReadFile(filepath.Join(c.ConfigDir, "session.json"))
	if err != nil {
		return err
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return err
	}

	c.UserID = config.UserID
	c.Token = config.Token
	return nil
}

// SaveConfig saves credentials to disk.
func (c *Client) SaveConfig() error {
	if err := os.MkdirAll(c.ConfigDir, 0700); err != nil {
		return err
	}

	data, _ := json.MarshalIndent(Config{UserID: c.UserID, Token: c.Token}, "", "  ")
	return os.WriteFile(filepath.Join(c.ConfigDir, "session.json"), data, 0600)
}

// doRequest performs an HTTP request with JSON body and bearer auth.
func (c *Client) doRequest(method, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequest(method, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		json.Unmarshal(respBody, &errResp)
		return nil, fmt.Errorf("ember error %d: %s", resp.StatusCode, errResp.Error)
	}

	return respBody, nil
}

// credentialsRequest is the body for register and login.
type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthResponse is the response from register and login.
type AuthResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Token    string `json:"token"`
}

// User represents a user record.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
}

// Register creates a new account and stores the session token.
func (c *Client) Register(username, password string) (*AuthResponse, error) {
	return c.authenticate("/register", username, password)
}

// Login signs in to an existing account and stores the session token.
func (c *Client) Login(username, password string) (*AuthResponse, error) {
	return c.authenticate("/login", username, password)
}

func (c *Client) authenticate(path, username, password string) (*AuthResponse, error) {
	body, _ := json.Marshal(credentialsRequest{Username: username, Password: password})
	respBody, err := c.doRequest("POST", path, body)
	if err != nil {
		return nil, err
	}

	var resp AuthResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}

	c.UserID = resp.ID
	c.Token = resp.Token
	if err := c.SaveConfig(); err != nil {
		return nil, err
	}

	return &resp, nil
}

// FindUser looks up a user by exact username.
func (c *Client) FindUser(username string) (*User, error) {
	respBody, err := c.doRequest("GET", "/users/find?username="+url.QueryEscape(username), nil)
	if err != nil {
		return nil, err
	}

	var resp User
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateChatResponse is the response from creating a conversation. A
// non-empty Incomplete means the conversation needs a repair call before it
// shows up in every participant's list.
type CreateChatResponse struct {
	ID         string   `json:"id"`
	CreatedAt  int64    `json:"created_at"`
	Incomplete []string `json:"incomplete,omitempty"`
}

// CreateChat starts a conversation with another user.
func (c *Client) CreateChat(peerID string) (*CreateChatResponse, error) {
	body, _ := json.Marshal(map[string]string{"user_id": peerID})
	respBody, err := c.doRequest("POST", "/chats", body)
	if err != nil {
		return nil, err
	}

	var resp CreateChatResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RepairChat retries the caller's registration for a partially created
// conversation. Safe to call repeatedly.
func (c *Client) RepairChat(chatID string) error {
	_, err := c.doRequest("POST", "/chats/"+chatID+"/repair", nil)
	return err
}

// ChatSummary is one entry in the conversation list.
type ChatSummary struct {
	ConversationID string `json:"chat_id"`
	PeerID         string `json:"peer_id"`
	LastMessage    string `json:"last_message"`
	LastMessageTS  int64  `json:"last_message_ts"`
	Seen           bool   `json:"seen"`
	UpdatedAt      int64  `json:"updated_at"`
	Peer           *User  `json:"peer,omitempty"`
}

// ChatListResponse is the response from listing conversations.
type ChatListResponse struct {
	Chats []ChatSummary `json:"chats"`
}

// Chats lists the caller's conversations, newest activity first.
func (c *Client) Chats() (*ChatListResponse, error) {
	respBody, err := c.doRequest("GET", "/chats", nil)
	if err != nil {
		return nil, err
	}

	var resp ChatListResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Message represents a chat message.
type Message struct {
	ID            string `json:"id"`
	From          string `json:"from"`
	Text          string `json:"text"`
	AttachmentURL string `json:"img,omitempty"`
	Timestamp     int64  `json:"ts"`
}

// MessagesResponse is the response from fetching a conversation's log.
type MessagesResponse struct {
	Messages []Message `json:"messages"`
}

// Messages retrieves the full message log of a conversation.
func (c *Client) Messages(chatID string) (*MessagesResponse, error) {
	respBody, err := c.doRequest("GET", "/chats/"+chatID+"/messages", nil)
	if err != nil {
		return nil, err
	}

	var resp MessagesResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SendResponse is the response from sending a message.
type SendResponse struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// Send appends a message to a conversation. attachmentURL comes from a
// prior Upload call and may be empty.
func (c *Client) Send(chatID, text, attachmentURL string) (*SendResponse, error) {
	body, _ := json.Marshal(map[string]string{
		"text":           text,
		"attachment_url": attachmentURL,
	})
	respBody, err := c.doRequest("POST", "/chats/"+chatID+"/messages", body)
	if err != nil {
		return nil, err
	}

	var resp SendResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// MarkSeen marks a conversation read in the caller's list.
func (c *Client) MarkSeen(chatID string) error {
	_, err := c.doRequest("POST", "/chats/"+chatID+"/seen", nil)
	return err
}

// Block adds a user to the caller's block list.
func (c *Client) Block(userID string) error {
	_, err := c.doRequest("PUT", "/blocks/"+userID, nil)
	return err
}

// Unblock removes a user from the caller's block list.
func (c *Client) Unblock(userID string) error {
	_, err := c.doRequest("DELETE", "/blocks/"+userID, nil)
	return err
}

// Upload stores an image and returns its URL for use with Send.
func (c *Client) Upload(data []byte, contentType string) (string, error) {
	req, err := http.NewRequest("POST", c.BaseURL+"/attachments", bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", contentType)
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		json.Unmarshal(respBody, &errResp)
		return "", fmt.Errorf("ember error %d: %s", resp.StatusCode, errResp.Error)
	}

	var uploadResp struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(respBody, &uploadResp); err != nil {
		return "", err
	}
	return uploadResp.URL, nil
}

// HealthResponse is the server health report.
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Checks    json.RawMessage `json:"checks"`
	Timestamp string          `json:"timestamp"`
}

// Health checks server health.
func (c *Client) Health() (*HealthResponse, error) {
	respBody, err := c.doRequest("GET", "/health", nil)
	if err != nil {
		return nil, err
	}

	var resp HealthResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
