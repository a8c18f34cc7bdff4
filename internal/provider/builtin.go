package provider

// Builtins returns fresh instances of the built-in adapters in registration order.
func Builtins() []Adapter {
	return []Adapter{
		NewMock(),
		NewOpenAIImages(),
		NewOpenAIVideo(),
		NewReplicate(),
		NewTaskHub(),
	}
}
