package models

const (
	StatusOnline      = "online"
	StatusDownloading = "downloading"
	StatusPaused      = "paused"
	StatusSaved       = "saved"
	StatusError       = "error"
	StatusMigrated    = "migrated"
)

// Image statuses. An image that is SAVED is registered but its file is not
// known to be on disk yet.
const (
	ImageStatusSaved       = "saved"
	ImageStatusDownloading = "downloading"
	ImageStatusDownloaded  = "downloaded"
	ImageStatusError       = "error"
	ImageStatusOnline      = "online"
)

var (
	ContentStatuses = []string{StatusOnline, StatusDownloading, StatusPaused, StatusSaved, StatusError, StatusMigrated}
	ImageStatuses   = []string{ImageStatusSaved, ImageStatusDownloading, ImageStatusDownloaded, ImageStatusError, ImageStatusOnline}

	// LibraryStatuses are the statuses of books that are part of the library
	// and visible to search.
	LibraryStatuses = []string{StatusSaved, StatusError, StatusMigrated}
	// QueueStatuses are the statuses a book can have while it has a queue record.
	QueueStatuses = []string{StatusDownloading, StatusPaused}
	// ProcessedImageStatuses count towards a book's completion.
	ProcessedImageStatuses = []string{ImageStatusDownloaded, ImageStatusError}
)

func IsLibraryStatus(status string) bool {
	return contains(LibraryStatuses, status)
}

func IsQueueStatus(status string) bool {
	return contains(QueueStatuses, status)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
