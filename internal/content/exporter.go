package content

import (
	"parchment/api/internal/snapshot"
)

// Export walks the surface and the config stores and produces a canonical
// document stamped for the current format. It reads already-valid
// in-memory state, so it is a total function of that state.
func Export(surface Surface, stores StoreReader) *snapshot.Document {
	orderMode, config := stores.WorkflowConfig()
	return &snapshot.Document{
		Content:     surface.GetContent(),
		Pagination:  stores.PaginationConfig(),
		SignerRoles: stores.SignerRoles(),
		OrderMode:   orderMode,
		Workflow:    config,
	}
}

// ExportRaw exports and encodes in one step.
func ExportRaw(surface Surface, stores StoreReader) ([]byte, error) {
	return snapshot.Encode(Export(surface, stores))
}
