package sockets

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/goccy/go-yaml"
)

// IWPM_PORT is the well-known UDP port port mappers listen on.
const IWPM_PORT uint16 = 3935

type Config struct {
	IPv4Port    uint16        `yaml:"ipv4Port"`
	IPv6Port    uint16        `yaml:"ipv6Port"`
	DisableIPv6 bool          `yaml:"disableIPv6"`
	ReadTimeout time.Duration `yaml:"readTimeout"`
}

var DefaultConfig = Config{
	IPv4Port:    IWPM_PORT,
	IPv6Port:    IWPM_PORT,
	DisableIPv6: false,
	ReadTimeout: time.Second,
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

// Sockets bundles every socket the port mapper needs.
type Sockets struct {
	IPv4    *Socket
	IPv6    *Socket
	Netlink *Socket
}

// Open creates the sockets described by c. On error every socket that
// had been successfully opened is closed again.
func Open(c *Config) (*Sockets, error) {
	if c == nil {
		c = &DefaultConfig
	}

	s := &Sockets{}

	var err error
	if s.IPv4, err = OpenIPv4(c.IPv4Port); err != nil {
		return nil, err
	}

	if !c.DisableIPv6 {
		if s.IPv6, err = OpenIPv6(c.IPv6Port); err != nil {
			return nil, errors.Join(err, s.Close())
		}
	}

	if s.Netlink, err = OpenNetlink(); err != nil {
		return nil, errors.Join(err, s.Close())
	}

	for _, sock := range []*Socket{s.IPv4, s.IPv6, s.Netlink} {
		if sock == nil || c.ReadTimeout == 0 {
			continue
		}
		if err := sock.SetReadTimeout(c.ReadTimeout); err != nil {
			return nil, errors.Join(err, s.Close())
		}
	}

	slog.Debug("opened port mapper sockets", "ipv4", s.IPv4, "ipv6", s.IPv6, "netlink", s.Netlink)

	return s, nil
}

func (s *Sockets) Close() error {
	var errs []error
	for _, sock := range []*Socket{s.IPv4, s.IPv6, s.Netlink} {
		if err := sock.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing %s: %w", sock, err))
		}
	}
	return errors.Join(errs...)
}
