package websocket

// Config holds the configuration for the browser-facing HTTP and WebSocket
// server.
type Config struct {
	// Listen address, e.g. ":7860".
	Addr string `json:"addr"`

	// WebSocket endpoint path.
	Path string `json:"path"`

	// Read buffer size for WebSocket connections (bytes)
	ReadBufferSize int `json:"read_buffer_size"`

	// Write buffer size for WebSocket connections (bytes)
	WriteBufferSize int `json:"write_buffer_size"`

	// Maximum message size (bytes). Utterances arrive base64 encoded in a
	// single message, so this bounds the recording length.
	MaxMessageSize int64 `json:"max_message_size"`

	// Origins allowed to open a session. Empty allows any origin.
	AllowedOrigins []string `json:"allowed_origins,omitempty"`

	// Format assumed for binary frames, which carry audio without metadata.
	BinaryAudioFormat string `json:"binary_audio_format"`

	// Enable TLS/SSL
	EnableTLS bool `json:"enable_tls"`

	// TLS certificate file path
	TLSCertFile string `json:"tls_cert_file,omitempty"`

	// TLS key file path
	TLSKeyFile string `json:"tls_key_file,omitempty"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Addr:              ":7860",
		Path:              "/ws",
		ReadBufferSize:    4096,
		WriteBufferSize:   4096,
		MaxMessageSize:    32 << 20,
		BinaryAudioFormat: "webm",
	}
}

func (c *Config) withDefaults() *Config {
	d := DefaultConfig()
	if c == nil {
		return d
	}
	out := *c
	if out.Addr == "" {
		out.Addr = d.Addr
	}
	if out.Path == "" {
		out.Path = d.Path
	}
	if out.ReadBufferSize <= 0 {
		out.ReadBufferSize = d.ReadBufferSize
	}
	if out.WriteBufferSize <= 0 {
		out.WriteBufferSize = d.WriteBufferSize
	}
	if out.MaxMessageSize <= 0 {
		out.MaxMessageSize = d.MaxMessageSize
	}
	if out.BinaryAudioFormat == "" {
		out.BinaryAudioFormat = d.BinaryAudioFormat
	}
	return &out
}
