// Package wire implements the message framing contract of the
// networking core: the fixed heading, the closed message-identifier
// catalog, and the command<->identifier mapping.
package wire

// Identifier is the closed enumeration of message kinds. A command that
// does not map to one of these is still framed and delivered, tagged
// Unknown.
type Identifier int

// The closed identifier catalog.
const (
	Unknown Identifier = iota
	Address
	Alert
	Block
	BloomFilterAdd
	BloomFilterClear
	BloomFilterLoad
	ClientFilter
	ClientFilterCheckpoint
	ClientFilterHeaders
	CompactBlock
	CompactTransactions
	FeeFilter
	GetAddress
	GetBlocks
	GetClientFilterCheckpoint
	GetClientFilterHeaders
	GetClientFilters
	GetCompactTransactions
	GetData
	GetHeaders
	Headers
	Inventory
	MemoryPool
	MerkleBlock
	NotFound
	Ping
	Pong
	Reject
	SendAddressV2
	SendCompact
	SendHeaders
	Transaction
	Version
	VersionAcknowledge
	WitnessTxIDRelay
)

// commandWidth is the fixed, NUL-padded width of the command field in a
// heading.
const commandWidth = 12

var identifierCommands = map[Identifier]string{
	Address:                   "addr",
	Alert:                     "alert",
	Block:                     "block",
	BloomFilterAdd:            "filteradd",
	BloomFilterClear:          "filterclear",
	BloomFilterLoad:           "filterload",
	ClientFilter:              "cfilter",
	ClientFilterCheckpoint:    "cfcheckpt",
	ClientFilterHeaders:       "cfheaders",
	CompactBlock:              "cmpctblock",
	CompactTransactions:       "blocktxn",
	FeeFilter:                 "feefilter",
	GetAddress:                "getaddr",
	GetBlocks:                 "getblocks",
	GetClientFilterCheckpoint: "getcfcheckpt",
	GetClientFilterHeaders:    "getcfheaders",
	GetClientFilters:          "getcfilters",
	GetCompactTransactions:    "getblocktxn",
	GetData:                   "getdata",
	GetHeaders:                "getheaders",
	Headers:                   "headers",
	Inventory:                 "inv",
	MemoryPool:                "mempool",
	MerkleBlock:               "merkleblock",
	NotFound:                  "notfound",
	Ping:                      "ping",
	Pong:                      "pong",
	Reject:                    "reject",
	SendAddressV2:             "sendaddrv2",
	SendCompact:               "sendcmpct",
	SendHeaders:               "sendheaders",
	Transaction:               "tx",
	Version:                   "version",
	VersionAcknowledge:        "verack",
	WitnessTxIDRelay:          "wtxidrelay",
}

var commandIdentifiers = func() map[string]Identifier {
	m := make(map[string]Identifier, len(identifierCommands))
	for id, cmd := range identifierCommands {
		m[cmd] = id
	}
	return m
}()

// Command returns the wire command text for id, or "" for Unknown (an
// Unknown identifier is only ever produced by decoding an unrecognized
// command, never sent).
func (id Identifier) Command() string {
	return identifierCommands[id]
}

// String implements fmt.Stringer.
func (id Identifier) String() string {
	if id == Unknown {
		return "unknown"
	}
	if cmd, ok := identifierCommands[id]; ok {
		return cmd
	}
	return "unknown"
}

// IdentifierForCommand maps a raw wire command to its Identifier, or
// Unknown if the command is not in the closed catalog.
func IdentifierForCommand(command string) Identifier {
	if id, ok := commandIdentifiers[command]; ok {
		return id
	}
	return Unknown
}
