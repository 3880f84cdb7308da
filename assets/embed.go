package assets

import (
	_ "embed"

	"github.com/soocke/prompt-bot-go/config"
)

// DefaultConfigYAML is the commented default configuration written by
// init-config.
//
//go:embed config.yaml
var DefaultConfigYAML []byte

// DefaultConfig decodes the embedded configuration.
func DefaultConfig() (*config.Config, error) {
	return config.Parse(DefaultConfigYAML, true)
}
