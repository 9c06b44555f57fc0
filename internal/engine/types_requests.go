package engine

// ApplyRequest represents a request to apply the modules of a manifest.
type ApplyRequest struct {
	// ManifestPath overrides the configured manifest when non-empty
	ManifestPath string

	// Force allows merge-copy to overwrite existing target entries
	Force bool

	// Strict turns patch and hook failures into a returned ErrBestEffort
	Strict bool
}
