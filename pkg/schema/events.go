package schema

// Scene change event types emitted by the graph store and the session.
const (
	EventItemAdded         = "item_added"
	EventItemRemoved       = "item_removed"
	EventItemChanged       = "item_changed"
	EventConnectorChanged  = "connector_changed"
	EventVisibilityChanged = "visibility_changed"
	EventContextChanged    = "context_changed"
	EventSceneCleared      = "scene_cleared"

	EventHistoryCaptured  = "history_captured"
	EventHistoryPreview   = "history_preview"
	EventHistoryPresent   = "history_present"
	EventHistoryRestored  = "history_restored"
	EventDocumentSaved    = "document_saved"
	EventDocumentOpened   = "document_opened"
	EventDocumentAutosave = "document_autosaved"
)
