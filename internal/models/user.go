package models

import (
	"fmt"
	"strings"
	"time"
)

// UsernameMaxLength bounds generated usernames.
const UsernameMaxLength = 30

// User is the local identity a linked channel belongs to.
type User struct {
	Base
	Username  string
	Email     string
	FirstName string
}

func NewUser(username, email, firstName string) *User {
	return &User{Base: newBase(), Username: username, Email: email, FirstName: firstName}
}

func (u *User) Validate() error {
	if strings.TrimSpace(u.Username) == "" {
		return invalid("username is required")
	}
	if len(u.Username) > 150 {
		return invalid("username too long")
	}
	return nil
}

// ChannelUsername is the preferred username for a user created from a channel login.
func ChannelUsername(channelID string) string {
	return truncate("youtube_"+channelID, UsernameMaxLength)
}

// ChannelUsernameCandidate returns the n-th alternative to [ChannelUsername], keeping
// the "_n" suffix inside the length limit.
func ChannelUsernameCandidate(channelID string, n int) string {
	suffix := fmt.Sprintf("_%d", n)
	return truncate("youtube_"+channelID, UsernameMaxLength-len(suffix)) + suffix
}

// FallbackUsername is used once every candidate is taken.
func FallbackUsername(now time.Time) string {
	return "youtube_user_" + now.Format("20060102150405")
}

// FirstName returns the first word of a channel name.
func FirstName(channelName string) string {
	if f := strings.Fields(channelName); len(f) > 0 {
		return f[0]
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// Session ties a browser cookie to a user. AccountID is empty when no channel was linked at login.
type Session struct {
	Token     string
	UserID    string
	AccountID string
	ExpiresAt time.Time
	CreatedAt time.Time
}

func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
