package recorder

// NoopRecorder is a no-op implementation used when SQLite is not configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordAction(_ *ActionEvent) error  { return nil }
func (n *NoopRecorder) RecordStatus(_ *StatusSample) error { return nil }
func (n *NoopRecorder) Close() error                       { return nil }
