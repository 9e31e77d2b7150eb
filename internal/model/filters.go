package model

// FilterPasses evaluates ChatFilters against a single chat following a
// fixed order: folder-override first, then archived, kind (with
// bot/contact sub-gates for private chats), muted, size, unread-only.
func FilterPasses(f ChatFilters, c Chat) bool {
	if len(f.FolderChatIDs) > 0 {
		if _, ok := f.FolderChatIDs[c.ID]; ok {
			return true
		}
	}

	if c.IsArchived && !f.IncludeArchived {
		return false
	}

	switch c.Kind {
	case ChatKindPrivate:
		if c.IsBot {
			if !f.IncludeBots {
				return false
			}
		} else if !f.IncludePrivateChats {
			return false
		} else if !c.IsContact && !f.IncludeNonContacts {
			return false
		}
	case ChatKindGroup:
		if !f.IncludeGroups {
			return false
		}
	case ChatKindChannel:
		if !f.IncludeChannels {
			return false
		}
	default:
		return false
	}

	if c.IsMuted && !f.IncludeMuted {
		return false
	}

	if c.Kind == ChatKindGroup || c.Kind == ChatKindChannel {
		if c.MemberCount != nil {
			n := *c.MemberCount
			if f.GroupSizeMin != nil && n < *f.GroupSizeMin {
				return false
			}
			if f.GroupSizeMax != nil && *f.GroupSizeMax < 1001 && n > *f.GroupSizeMax {
				return false
			}
		}
	}

	if f.IncludeUnreadOnly && c.UnreadCount == 0 {
		return false
	}

	return true
}
