package adapter

import "strings"

// Logical folder names used by the sync engine. Backfill processes them in
// this priority order: inbox first, then sent, then the rest.
const (
	FolderInbox   = "inbox"
	FolderSent    = "sent"
	FolderArchive = "archive"
)

// SyncFolders returns the folders to backfill, in priority order
func SyncFolders() []string {
	return []string{FolderInbox, FolderSent, FolderArchive}
}

// PriorityFolders returns the folders checked during incremental sync
func PriorityFolders() []string {
	return []string{FolderInbox, FolderSent}
}

// Provider-specific IMAP folder names
var folderMappings = map[string]map[string]string{
	"gmail": {
		FolderInbox:   "INBOX",
		FolderSent:    "[Gmail]/Sent Mail",
		FolderArchive: "[Gmail]/All Mail",
	},
	"outlook": {
		FolderInbox:   "INBOX",
		FolderSent:    "Sent Items",
		FolderArchive: "Archive",
	},
	"custom": {
		FolderInbox:   "INBOX",
		FolderSent:    "Sent",
		FolderArchive: "Archive",
	},
}

// folderName maps a logical folder to the provider's IMAP name
func folderName(provider, folder string) string {
	mapping, ok := folderMappings[provider]
	if !ok {
		mapping = folderMappings["custom"]
	}
	if name, ok := mapping[folder]; ok {
		return name
	}
	return strings.ToUpper(folder)
}
