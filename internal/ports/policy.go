package ports

import "time"

// Policy bounds the reporting pipeline. The journal itself is never
// suppressed; MaxJournalSizeBytes only raises a critical alert.
type Policy struct {
	MaxJournalSizeBytes int64         `yaml:"max_journal_size_bytes"`
	MaxQueueLen         int           `yaml:"max_queue_len"`
	MaxBatchSize        int           `yaml:"max_batch_size"`
	IdleSleep           time.Duration `yaml:"idle_sleep"`
	MaxAttempts         int           `yaml:"max_attempts"`
	RetryHeldAfter      time.Duration `yaml:"retry_held_after"`

	OnQueueFull string `yaml:"on_queue_full"` // "block", "drop", "reject"
}
