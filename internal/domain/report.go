package domain

import "time"

// ProviderReport registers an ingested provider settlement file. FileHash is
// unique so the same file is never ingested twice.
type ProviderReport struct {
	ID          string    `json:"id"`
	Provider    Provider  `json:"provider"`
	Format      string    `json:"format"`
	BatchID     string    `json:"batch_id"`
	FileHash    string    `json:"file_hash"`
	RecordCount int       `json:"record_count"`
	IngestedAt  time.Time `json:"ingested_at"`
}
