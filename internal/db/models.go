package db

import (
	"time"
)

type Document struct {
	ID               string     `json:"id"`
	OwnerID          string     `json:"owner_id,omitempty"`
	OriginalFilename string     `json:"original_filename"`
	StoredFilename   string     `json:"stored_filename"`
	FilePath         string     `json:"file_path"`
	FileSize         int64      `json:"file_size"`
	FileType         string     `json:"file_type"`
	Merged           bool       `json:"merged"`
	SourceFiles      []string   `json:"source_files"`
	PrintPath        string     `json:"print_path"`
	Copies           int        `json:"copies"`
	ColorMode        string     `json:"color_mode"`
	Status           string     `json:"status"`
	FailureReason    string     `json:"failure_reason,omitempty"`
	RetryCount       int        `json:"retry_count"`
	Released         bool       `json:"released"`
	UploadTime       time.Time  `json:"upload_time"`
	QueuedAt         *time.Time `json:"queued_at,omitempty"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	TotalPrints  int64     `json:"total_prints"`
	CreatedAt    time.Time `json:"created_at"`
}

type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
