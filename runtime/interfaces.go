package runtime

import "context"

// FlowLoader loads flow definitions from files.
type FlowLoader interface {
	Extensions() []string
	Load(filePath string) (Flow, error)
}

// Project is the record-store view of a low-code project.
type Project struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Collections []Collection `json:"collections"`
}

// Collection describes one record collection (a data table) of a project.
type Collection struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	PrimaryKey string `json:"primaryKey"`
}

// Field is a data-field definition; Name is the human alias of the opaque ID.
type Field struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	CollectionID string `json:"collectionId"`
}

// RecordStore is everything the engine needs from persistence. The engine
// never reaches past it into storage internals.
type RecordStore interface {
	GetProject(ctx context.Context, projectID string) (*Project, error)
	ListRecords(ctx context.Context, collectionID string, filter Filter) ([]map[string]any, error)
	InsertRecord(ctx context.Context, collectionID string, fields map[string]any) (map[string]any, error)
	UpdateRecord(ctx context.Context, collectionID, primaryKey string, fields map[string]any) error
	DeleteRecord(ctx context.Context, collectionID, primaryKey string) error
	ListFields(ctx context.Context, projectID string) ([]Field, error)
}

type NotifyKind string

const (
	NotifyInfo    NotifyKind = "info"
	NotifySuccess NotifyKind = "success"
	NotifyWarning NotifyKind = "warning"
	NotifyError   NotifyKind = "error"
)

type NavigateMode string

const (
	NavigatePush    NavigateMode = "push"
	NavigateReplace NavigateMode = "replace"
	NavigateBlank   NavigateMode = "blank"
	NavigateOverlay NavigateMode = "overlay"
)

// Notifier receives the UI-facing effects of a run. Implementations decide
// how to surface them; the engine never touches a UI toolkit directly.
type Notifier interface {
	Notify(ctx context.Context, kind NotifyKind, message string) error
	Navigate(ctx context.Context, targetID string, params map[string]any, mode NavigateMode) error
	GoBack(ctx context.Context, refresh bool) error
	Reload(ctx context.Context, message string) error
	CloseOverlay(ctx context.Context, refreshParent bool) error
}
