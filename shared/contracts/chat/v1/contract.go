// Package v1 defines the lobby chat protocol v1 contract.
//
// Every envelope is a flat JSON object discriminated by "type". Client requests
// decode into Envelope; server messages are built from the typed structs below
// so that booleans and empty lists are always present on the wire.
package v1

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Subprotocol is negotiated by WebSocket clients.
const Subprotocol = "lobby.chat.v1"

// Type constants (wire-stable).
const (
	// TypeRegister creates an account (client -> server).
	TypeRegister = "register"
	// TypeLogin authenticates a connection (client -> server).
	TypeLogin = "login"
	// TypeMessage sends chat text to everyone online (client -> server).
	TypeMessage = "message"
	// TypeLogout ends the session (client -> server).
	TypeLogout = "logout"
	// TypeGetUserList asks for the online users (client -> server).
	TypeGetUserList = "get_user_list"

	// TypeRegisterResponse answers TypeRegister (server -> client).
	TypeRegisterResponse = "register_response"
	// TypeLoginResponse answers TypeLogin (server -> client).
	TypeLoginResponse = "login_response"
	// TypeChatMessage is a broadcast chat line (server -> clients).
	TypeChatMessage = "chat_message"
	// TypeSystemMessage is a broadcast server notice (server -> clients).
	TypeSystemMessage = "system_message"
	// TypeUserList carries the online usernames (server -> client).
	TypeUserList = "user_list"
	// TypeError reports a rejected request (server -> client).
	TypeError = "error"
)

// ErrUnknownType is returned by Validate for a type outside the client request set.
var ErrUnknownType = errors.New("unknown type")

// Envelope is the decoded form of any protocol message.
//
// Fields irrelevant to a given type stay at their zero value.
type Envelope struct {
	Type      string   `json:"type"`
	Username  string   `json:"username,omitempty"`
	Password  string   `json:"password,omitempty"`
	Content   string   `json:"content,omitempty"`
	Message   string   `json:"message,omitempty"`
	Success   bool     `json:"success,omitempty"`
	Users     []string `json:"users,omitempty"`
	Timestamp float64  `json:"timestamp,omitempty"`
}

// requiredFields lists, per client request type, the keys that must be present.
// Presence is checked on the raw object: an empty string is present.
var requiredFields = map[string][]string{
	TypeRegister:    {"username", "password"},
	TypeLogin:       {"username", "password"},
	TypeMessage:     {"content"},
	TypeLogout:      nil,
	TypeGetUserList: nil,
}

// IsRequest reports whether typ is a client -> server type.
func IsRequest(typ string) bool {
	_, ok := requiredFields[typ]
	return ok
}

// Validate checks that typ is a known request type and every required key is in keys.
func Validate(typ string, keys map[string]struct{}) error {
	if strings.TrimSpace(typ) == "" {
		return errors.New("missing field: type")
	}
	if !IsRequest(typ) {
		return fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}
	for _, k := range requiredFields[typ] {
		if _, ok := keys[k]; !ok {
			return fmt.Errorf("missing field: %s", k)
		}
	}
	return nil
}

// ---- server -> client messages ----

// RegisterResponse answers a register request.
type RegisterResponse struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// LoginResponse answers a login request. Username is set on success only.
type LoginResponse struct {
	Type     string `json:"type"`
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Username string `json:"username,omitempty"`
}

// ChatMessage is delivered to every online user except the sender.
type ChatMessage struct {
	Type      string  `json:"type"`
	Username  string  `json:"username"`
	Content   string  `json:"content"`
	Timestamp float64 `json:"timestamp"`
}

// SystemMessage is a server notice (joins, departures, shutdown).
type SystemMessage struct {
	Type      string  `json:"type"`
	Content   string  `json:"content"`
	Timestamp float64 `json:"timestamp"`
}

// UserList is the ordered set of online usernames.
type UserList struct {
	Type      string   `json:"type"`
	Users     []string `json:"users"`
	Timestamp float64  `json:"timestamp"`
}

// ErrorMessage reports a rejected or malformed request.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewRegisterResponse builds a register_response.
func NewRegisterResponse(ok bool, msg string) RegisterResponse {
	return RegisterResponse{Type: TypeRegisterResponse, Success: ok, Message: msg}
}

// NewLoginResponse builds a login_response; username is dropped on failure.
func NewLoginResponse(ok bool, msg, username string) LoginResponse {
	if !ok {
		username = ""
	}
	return LoginResponse{Type: TypeLoginResponse, Success: ok, Message: msg, Username: username}
}

// NewChatMessage builds a chat_message stamped at now.
func NewChatMessage(username, content string, now time.Time) ChatMessage {
	return ChatMessage{Type: TypeChatMessage, Username: username, Content: content, Timestamp: UnixSeconds(now)}
}

// NewSystemMessage builds a system_message stamped at now.
func NewSystemMessage(content string, now time.Time) SystemMessage {
	return SystemMessage{Type: TypeSystemMessage, Content: content, Timestamp: UnixSeconds(now)}
}

// NewUserList builds a user_list. A nil slice is sent as [].
func NewUserList(users []string, now time.Time) UserList {
	if users == nil {
		users = []string{}
	}
	return UserList{Type: TypeUserList, Users: users, Timestamp: UnixSeconds(now)}
}

// NewError builds an error message.
func NewError(msg string) ErrorMessage {
	return ErrorMessage{Type: TypeError, Message: msg}
}

// UnixSeconds converts t to fractional Unix seconds, the timestamp unit on the wire.
func UnixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
