package recorder

// NoopRecorder drops all events. Used when no database is configured.
type NoopRecorder struct{}

func NewNoop() *NoopRecorder { return &NoopRecorder{} }

func (*NoopRecorder) Record(EpochEvent) error { return nil }

func (*NoopRecorder) Close() error { return nil }
