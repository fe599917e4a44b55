package botapi

import (
	"errors"
	"fmt"
	"strings"
)

// Permission is the tier a chatter needs to trigger a command.
type Permission string

const (
	PermAll         Permission = "all"
	PermSubscriber  Permission = "subscriber"
	PermModerator   Permission = "moderator"
	PermBroadcaster Permission = "broadcaster"
)

// Permissions lists every tier from lowest to highest.
var Permissions = []Permission{PermAll, PermSubscriber, PermModerator, PermBroadcaster}

var ErrInvalidPermission = errors.New("invalid permission")

// ParsePermission accepts any casing of a known tier.
func ParsePermission(s string) (Permission, error) {
	p := Permission(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Permissions {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPermission, s)
}

// Level returns 0 for all up to 3 for broadcaster, or 255 for an unknown tier.
func (p Permission) Level() uint8 {
	for i, known := range Permissions {
		if strings.EqualFold(string(p), string(known)) {
			return uint8(i)
		}
	}
	return 255
}

// Command is a chat-triggered response. Name is the map key on the wire.
type Command struct {
	Name     string     `json:"-"`
	Response string     `json:"Response"`
	Perm     Permission `json:"Perm"`
	Count    int        `json:"Count,omitempty"`
}

// Quote is a stored snippet. ID is the map key on the wire.
type Quote struct {
	ID        int    `json:"-"`
	Quote     string `json:"Quote"`
	Timestamp string `json:"Timestamp"`
	Submitter string `json:"Submitter"`
}

// BanRecord is one logged moderation action.
type BanRecord struct {
	User      string `json:"User"`
	Reason    string `json:"Reason"`
	Timestamp string `json:"Timestamp"`
}

// Stats backs the "Quick Stats" panel.
type Stats struct {
	Commands     int    `json:"Commands"`
	Quotes       int    `json:"Quotes"`
	Bans         int    `json:"Bans"`
	TopCommand   string `json:"TopCommand"`
	TopComCount  int    `json:"TopComCount"`
	TopChatter   string `json:"TopChatter"`
	TopChatCount int    `json:"TopChatCount"`
}

// AddCommandRequest is the /addcom body.
type AddCommandRequest struct {
	CommandName string     `json:"CommandName"`
	Response    string     `json:"Response"`
	Perm        Permission `json:"Perm"`
}
