// Package events defines the pipeline's event envelopes and their CloudEvents
// wire format.
package events

// Default topic names. The agent reads the effective names from configuration.
const (
	TopicUploaded   = "files.uploaded"
	TopicStats      = "stats.calculated"
	TopicDuplicates = "plagiarism.checked"
	TopicDeadLetter = "files.uploaded.dlq"
)

// CloudEvents types, one per envelope.
const (
	TypeFileUploaded    = "filecheck.file.uploaded"
	TypeStatsCalculated = "filecheck.stats.calculated"
	TypeDuplicateCheck  = "filecheck.plagiarism.checked"
)

// Envelope is implemented by every event payload.
type Envelope interface {
	EventType() string
	// Key is the partition key, always the file identifier.
	Key() string
}

// FileUploaded announces a stored blob whose metadata has been committed.
type FileUploaded struct {
	FileID           string `json:"fileId"`
	OriginalFilename string `json:"originalFilename"`
	ContentType      string `json:"contentType"`
	Size             int64  `json:"size"`
	StoragePath      string `json:"storagePath"`
	UserID           string `json:"userId,omitempty"`
}

func (FileUploaded) EventType() string { return TypeFileUploaded }
func (e FileUploaded) Key() string     { return e.FileID }

type StatsCalculated struct {
	FileID         string `json:"fileId"`
	ParagraphCount int    `json:"paragraphCount"`
	WordCount      int    `json:"wordCount"`
	CharCount      int    `json:"charCount"`
}

func (StatsCalculated) EventType() string { return TypeStatsCalculated }
func (e StatsCalculated) Key() string     { return e.FileID }

// DuplicateCheckResult reports whether a file's content matched an earlier
// file. Similarity is 100 for an exact match and 0 otherwise.
type DuplicateCheckResult struct {
	FileID        string  `json:"fileId"`
	IsDuplicate   bool    `json:"isDuplicate"`
	MatchedFileID string  `json:"matchedFileId,omitempty"`
	Similarity    float64 `json:"similarity"`
}

func (DuplicateCheckResult) EventType() string { return TypeDuplicateCheck }
func (e DuplicateCheckResult) Key() string     { return e.FileID }
