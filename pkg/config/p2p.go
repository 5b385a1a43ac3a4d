package config

import (
	"fmt"
	"time"
)

// P2P holds the networking core's tunables.
type P2P struct {
	// Threads is the size of the shared worker pool every strand posts
	// onto.
	Threads int `yaml:"Threads"`

	InboundConnections  int `yaml:"InboundConnections"`
	OutboundConnections int `yaml:"OutboundConnections"`
	// ConnectBatchSize is the number of parallel dial attempts made per
	// outbound slot being filled.
	ConnectBatchSize int `yaml:"ConnectBatchSize"`

	HandshakeTimeout   time.Duration `yaml:"HandshakeTimeout"`
	ChannelInactivity  time.Duration `yaml:"ChannelInactivity"`
	ChannelExpiration  time.Duration `yaml:"ChannelExpiration"`
	ChannelGermination time.Duration `yaml:"ChannelGermination"`

	PingInterval    time.Duration `yaml:"PingInterval"`
	ResponseTimeout time.Duration `yaml:"ResponseTimeout"`

	HostPoolCapacity int    `yaml:"HostPoolCapacity"`
	HostFilePath     string `yaml:"HostFilePath"`

	ProtocolMinimum   uint32 `yaml:"ProtocolMinimum"`
	ProtocolMaximum   uint32 `yaml:"ProtocolMaximum"`
	ServicesMinimum   uint64 `yaml:"ServicesMinimum"`
	ServicesMaximum   uint64 `yaml:"ServicesMaximum"`
	RelayTransactions bool   `yaml:"RelayTransactions"`

	NetworkMagic uint32 `yaml:"NetworkMagic"`

	Addresses []string `yaml:"Addresses"`
}

// Validate returns an error if the P2P configuration is not internally
// consistent.
func (p P2P) Validate() error {
	if p.Threads < 1 {
		return fmt.Errorf("invalid Threads: %d, must be >= 1", p.Threads)
	}
	if p.ProtocolMinimum > p.ProtocolMaximum {
		return fmt.Errorf("ProtocolMinimum %d exceeds ProtocolMaximum %d", p.ProtocolMinimum, p.ProtocolMaximum)
	}
	if p.ServicesMinimum > p.ServicesMaximum {
		return fmt.Errorf("ServicesMinimum %d exceeds ServicesMaximum %d", p.ServicesMinimum, p.ServicesMaximum)
	}
	if p.ConnectBatchSize < 1 {
		return fmt.Errorf("invalid ConnectBatchSize: %d, must be >= 1", p.ConnectBatchSize)
	}
	return nil
}
