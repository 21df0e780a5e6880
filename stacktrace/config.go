package stacktrace

// Config selects how captures are performed. It is read once at the start of
// every capture and never modified by this package.
type Config struct {
	// LazyAsyncStacks collects in one pass into a growable buffer instead of
	// counting first and collecting into exactly sized storage.
	LazyAsyncStacks bool
	// CausalAsyncStacks links captures made inside an asynchronous task to
	// the stack that started the task.
	CausalAsyncStacks bool
	// ShowInvisibleFrames reports frames of hidden runtime functions as
	// managed.
	ShowInvisibleFrames bool
}

func DefaultConfig() Config {
	return Config{}
}
