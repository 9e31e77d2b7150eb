package cache

import (
	"fmt"
	"hash/fnv"
	"sort"
)

// ChatsKeyPrefix namespaces every AI-result cache entry so InvalidatePrefix
// can drop them together.
const ChatsKeyPrefix = "chats:"

// ContactsKey is the single sentinel key under which the annotated contact
// list is cached.
const ContactsKey = "contacts"

// ChatSetKey builds the cache key for an AI result over a set of chat ids.
// Sorting first guarantees the same set produces the same key regardless
// of caller order.
func ChatSetKey(chatIDs []int64) string {
	sorted := append([]int64(nil), chatIDs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	h := fnv.New64a()
	for _, id := range sorted {
		fmt.Fprintf(h, "%d,", id)
	}
	return fmt.Sprintf("%s%x", ChatsKeyPrefix, h.Sum64())
}
