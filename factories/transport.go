package factories

import (
	"speechbot/core"
	"speechbot/transports/websocket"
)

// BuildProvider creates the browser transport described by the settings.
// models backs the model listing endpoint.
func (c SettingsConfig) BuildProvider(models core.ModelLister, logger *core.Logger) *websocket.Provider {
	server := c.Server
	return websocket.NewProvider(&server, models, logger)
}

// PipelineConfig derives the per-session pipeline settings.
func (c SettingsConfig) PipelineConfig() PipelineConfig {
	return PipelineConfig{
		Timeout: c.SessionTimeout(),
		LogDir:  c.LogDir,
		Session: c.Session,
	}
}
