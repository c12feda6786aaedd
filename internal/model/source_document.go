package model

// SourceDocument tracks one ingested statement: which file it came from and
// how many records it contributed. Re-ingesting the same document_id bumps
// mtime and replaces the counts.
type SourceDocument struct {
	DocumentID   string `json:"document_id"`
	FileKey      string `json:"file_key"`
	RecordCount  int    `json:"record_count"`
	SkippedCount int    `json:"skipped_count"`
	Ctime        int64  `json:"ctime"`
	Mtime        int64  `json:"mtime"`
}
