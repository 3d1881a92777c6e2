package discord

import (
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// MentionIndex maps lowercased member names to user ids so Minecraft chat can
// ping Discord users with @name. It is fed from member gateway events.
type MentionIndex struct {
	mu     sync.RWMutex
	byName map[string]string
	byUser map[string][]string
}

func NewMentionIndex() *MentionIndex {
	return &MentionIndex{
		byName: make(map[string]string),
		byUser: make(map[string][]string),
	}
}

// Put indexes a member under its nickname, global name and username
func (x *MentionIndex) Put(member *discordgo.Member) {
	if member == nil || member.User == nil {
		return
	}
	id := member.User.ID

	x.mu.Lock()
	defer x.mu.Unlock()
	x.removeLocked(id)

	var names []string
	for _, name := range []string{member.Nick, member.User.GlobalName, member.User.Username} {
		key := strings.ToLower(name)
		if key == "" || strings.ContainsRune(key, ' ') {
			continue
		}
		x.byName[key] = id
		names = append(names, key)
	}
	x.byUser[id] = names
}

// Remove drops every name indexed for userID
func (x *MentionIndex) Remove(userID string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.removeLocked(userID)
}

func (x *MentionIndex) removeLocked(userID string) {
	for _, key := range x.byUser[userID] {
		if x.byName[key] == userID {
			delete(x.byName, key)
		}
	}
	delete(x.byUser, userID)
}

// Lookup finds the user id for a name, ignoring case
func (x *MentionIndex) Lookup(name string) (string, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	id, ok := x.byName[strings.ToLower(name)]
	return id, ok
}

// Len returns the number of indexed names
func (x *MentionIndex) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.byName)
}

// Replace rewrites each @name that matches a member into a Discord mention.
// A mention runs from the @ to the next space.
func (x *MentionIndex) Replace(message string) string {
	if !strings.Contains(message, "@") {
		return message
	}
	words := strings.Split(message, " ")
	for i, word := range words {
		at := strings.IndexByte(word, '@')
		if at < 0 || at == len(word)-1 {
			continue
		}
		if id, ok := x.Lookup(word[at+1:]); ok {
			words[i] = word[:at] + "<@" + id + ">"
		}
	}
	return strings.Join(words, " ")
}
