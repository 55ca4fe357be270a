package config

type Config interface {
	EnvConfig
	ClientConfig
	CapabilityConfig
}

type mainConfig struct {
	EnvVars
	Client
	Capabilities
}

func New() Config {
	return mainConfig{}
}
