package channel

// NewReader returns a closed channel holding a copy of content.
func NewReader(content []byte, options ...Option) *ByteChannel {
	channel := New(options...)
	_, _ = channel.writeBuffer.Write(content)
	_ = channel.Close()
	return channel
}

func NewStringReader(content string, options ...Option) *ByteChannel {
	channel := New(options...)
	_, _ = channel.writeBuffer.WriteString(content)
	_ = channel.Close()
	return channel
}

// Empty returns a channel that is already closed.
func Empty() *ByteChannel {
	channel := New()
	_ = channel.Close()
	return channel
}
