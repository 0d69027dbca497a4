// Package repo implements the knowledge, fact and session stores on top of
// process memory, Redis and Postgres.
package repo

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func factsKey(userID, agentID string) string {
	return fmt.Sprintf("facts:%s:%s", userID, agentID)
}

func sessionKey(sessionID string) string {
	return fmt.Sprintf("session:%s", sessionID)
}

const (
	knowledgeSeqKey     = "knowledge:seq"
	knowledgeEntriesKey = "knowledge:entries"
)
