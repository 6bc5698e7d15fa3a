package stompwire

import (
	"strconv"
	"strings"
)

const (
	groupTopicPrefix = "/topic/group/"
	groupSendPrefix  = "/app/chat/"
	groupSendSuffix  = "/send"
)

// GroupTopic is the destination a client subscribes to for a group's live messages.
func GroupTopic(groupID int64) string {
	return groupTopicPrefix + strconv.FormatInt(groupID, 10)
}

// GroupSendDestination is the destination a client publishes new messages to.
func GroupSendDestination(groupID int64) string {
	return groupSendPrefix + strconv.FormatInt(groupID, 10) + groupSendSuffix
}

// ParseGroupTopic extracts the group id from a topic destination.
func ParseGroupTopic(dest string) (int64, bool) {
	rest, ok := strings.CutPrefix(dest, groupTopicPrefix)
	if !ok {
		return 0, false
	}
	return parseID(rest)
}

// ParseGroupSendDestination extracts the group id from a send destination.
func ParseGroupSendDestination(dest string) (int64, bool) {
	rest, ok := strings.CutPrefix(dest, groupSendPrefix)
	if !ok {
		return 0, false
	}
	rest, ok = strings.CutSuffix(rest, groupSendSuffix)
	if !ok {
		return 0, false
	}
	return parseID(rest)
}

func parseID(s string) (int64, bool) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
