package model

// DatabaseData holds the user-editable fields of a database.
type DatabaseData struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Database is a tenant-level container of tables.
type Database = Document[DatabaseData]

// TableData holds the user-editable fields of a table.
type TableData struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Table is a schema-optional collection of refs.
type Table = Document[TableData]

// Ref is a generic document stored under a table.
type Ref = Document[map[string]any]

// UserData holds the profile fields of a user.
// Password is only ever sent, never returned.
type UserData struct {
	Email    string   `json:"email"`
	Username string   `json:"username,omitempty"`
	Password string   `json:"password,omitempty"`
	FullName string   `json:"fullName,omitempty"`
	IsActive *bool    `json:"isActive,omitempty"`
	Roles    []string `json:"roles,omitempty"`
}

// User is an account known to the auth service.
type User = Document[UserData]

// StorageData holds the fields of a storage.
type StorageData struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Storage groups buckets.
type Storage = Document[StorageData]

// BucketData holds the fields of a bucket.
type BucketData struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	StorageID   string `json:"storage_id,omitempty"`
}

// Bucket groups files inside a storage.
type Bucket = Document[BucketData]

// FileData describes a stored file.
type FileData struct {
	Filename  string `json:"filename"`
	MimeType  string `json:"mimeType,omitempty"`
	Size      int64  `json:"size,omitempty"`
	BucketID  string `json:"bucket_id,omitempty"`
	StorageID string `json:"storage_id,omitempty"`
	Path      string `json:"path,omitempty"`
}

// File is a stored blob's metadata.
type File = Document[FileData]
