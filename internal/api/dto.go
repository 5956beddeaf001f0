package api

// CreateNotebookRequest creates a notebook; an empty name gets the
// default with a numeric disambiguator.
type CreateNotebookRequest struct {
	Name string `json:"name"`
}

// RenameRequest renames a notebook or note.
type RenameRequest struct {
	Name string `json:"name"`
}

// CreateNoteRequest creates a note. Kind is "text" or "voice".
type CreateNoteRequest struct {
	Kind    string `json:"kind"`
	Name    string `json:"name"`
	Content string `json:"content"`
}

// UpdateNoteRequest updates a note's content.
type UpdateNoteRequest struct {
	Content string `json:"content"`
}

// StickyRequest toggles the sticky flag.
type StickyRequest struct {
	Sticky bool `json:"sticky"`
}

// MoveNotesRequest re-parents a set of notes.
type MoveNotesRequest struct {
	NoteIDs          []int64 `json:"note_ids"`
	TargetNotebookID int64   `json:"target_notebook_id"`
}

// DeleteNotesRequest deletes a set of notes.
type DeleteNotesRequest struct {
	NoteIDs []int64 `json:"note_ids"`
}

// BulkResult reports how many items a bulk operation affected.
type BulkResult struct {
	Affected int `json:"affected"`
}

// StartRecordingRequest begins capture for a voice note. Source is
// "internal" or "microphone".
type StartRecordingRequest struct {
	NoteID int64  `json:"note_id"`
	Source string `json:"source"`
}

// NoteIDRequest addresses a single note.
type NoteIDRequest struct {
	NoteID int64 `json:"note_id"`
}

// ExportRequest saves a note's payload as a file. Format is "mp3" or
// "txt"; Dir is the destination directory chosen by the caller.
type ExportRequest struct {
	Format string `json:"format"`
	Dir    string `json:"dir"`
}
