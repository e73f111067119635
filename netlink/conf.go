package netlink

import (
	"github.com/goccy/go-yaml"
)

type Config struct {
	Log bool `yaml:"log"`

	// BufferSize is the size of the buffer inbound datagrams are read
	// into. Datagrams larger than this are truncated by the kernel.
	BufferSize int `yaml:"bufferSize"`

	// KernelPID is where requests to the kernel are addressed.
	KernelPID uint32 `yaml:"kernelPid"`
}

var DefaultConfig = Config{
	Log:        true,
	BufferSize: 8192,
	KernelPID:  0,
}

func (c *Config) UnmarshalYAML(b []byte) error {
	// Needed to break recursive calls into UnmarshalYAML
	type config Config

	def := config(DefaultConfig)

	if err := yaml.Unmarshal(b, &def); err != nil {
		return err
	}

	*c = Config(def)

	return nil
}
