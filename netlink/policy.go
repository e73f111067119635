package netlink

import (
	"fmt"

	"github.com/scitags/iwpm-go/addr"
)

type AttrKind int

const (
	Unspec AttrKind = iota
	U8
	U16
	U32
	U64
	String
	Binary
)

var attrKindNames = map[AttrKind]string{
	Unspec: "unspec",
	U8:     "u8",
	U16:    "u16",
	U32:    "u32",
	U64:    "u64",
	String: "string",
	Binary: "binary",
}

func (k AttrKind) String() string {
	repr, ok := attrKindNames[k]
	if !ok {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return repr
}

// AttrPolicy describes what an attribute should look like.
type AttrPolicy struct {
	Kind AttrKind

	// Len is the maximum length (excluding the trailing NUL) of String
	// attributes and the minimum length of Binary ones. It's ignored for
	// any other kind.
	Len int
}

// Policy describes the attributes of a message type. Attribute types
// index the slice and index 0 is reserved, so a policy for a message with
// N attributes has N+1 entries. Policies are never modified once defined.
type Policy []AttrPolicy

// Count is the number of slots in a Table parsed with this policy.
func (p Policy) Count() int {
	return len(p)
}

var sockaddrPolicy = AttrPolicy{Kind: Binary, Len: addr.SockaddrStorageLen}

// Policies holds the attribute policy for each port mapper operation the
// kernel initiates.
var Policies = map[uint16]Policy{
	RDMA_NL_IWPM_REG_PID: {
		IWPM_NLA_REG_PID_SEQ:    {Kind: U32},
		IWPM_NLA_REG_IF_NAME:    {Kind: String, Len: IWPM_IFNAME_SIZE - 1},
		IWPM_NLA_REG_IBDEV_NAME: {Kind: String, Len: IWPM_DEVNAME_SIZE - 1},
		IWPM_NLA_REG_ULIB_NAME:  {Kind: String, Len: IWPM_ULIBNAME_SIZE - 1},
	},
	RDMA_NL_IWPM_ADD_MAPPING: {
		IWPM_NLA_MANAGE_MAPPING_SEQ: {Kind: U32},
		IWPM_NLA_MANAGE_ADDR:        sockaddrPolicy,
		IWPM_NLA_MANAGE_FLAGS:       {Kind: U32},
	},
	RDMA_NL_IWPM_QUERY_MAPPING: {
		IWPM_NLA_QUERY_MAPPING_SEQ: {Kind: U32},
		IWPM_NLA_QUERY_LOCAL_ADDR:  sockaddrPolicy,
		IWPM_NLA_QUERY_REMOTE_ADDR: sockaddrPolicy,
		IWPM_NLA_QUERY_FLAGS:       {Kind: U32},
	},
	// Removal requests carry no flags.
	RDMA_NL_IWPM_REMOVE_MAPPING: {
		IWPM_NLA_MANAGE_MAPPING_SEQ: {Kind: U32},
		IWPM_NLA_MANAGE_ADDR:        sockaddrPolicy,
	},
	RDMA_NL_IWPM_HANDLE_ERR: {
		IWPM_NLA_ERR_SEQ:  {Kind: U32},
		IWPM_NLA_ERR_CODE: {Kind: U16},
	},
	RDMA_NL_IWPM_MAPINFO: {
		IWPM_NLA_MAPINFO_ULIB_NAME: {Kind: String, Len: IWPM_ULIBNAME_SIZE - 1},
		IWPM_NLA_MAPINFO_ULIB_VER:  {Kind: U16},
	},
	RDMA_NL_IWPM_MAPINFO_NUM: {
		IWPM_NLA_MAPINFO_SEQ:      {Kind: U32},
		IWPM_NLA_MAPINFO_SEND_NUM: {Kind: U32},
		IWPM_NLA_MAPINFO_ACK_NUM:  {Kind: U32},
	},
	RDMA_NL_IWPM_HELLO: {
		IWPM_NLA_HELLO_ABI_VERSION: {Kind: U16},
	},
}

// PolicyFor returns the policy for the operation encoded in msgType.
func PolicyFor(msgType uint16) (Policy, bool) {
	p, ok := Policies[RDMA_NL_GET_OP(msgType)]
	return p, ok
}
