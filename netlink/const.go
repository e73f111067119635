package netlink

// All of these constants' names make the linter complain, but we inherited
// them from include/uapi/rdma/rdma_netlink.h, so we will keep them as they are...
const (
	// RDMA netlink clients. Message types are built with RDMA_NL_GET_TYPE.
	RDMA_NL_IWCM = 2
	RDMA_NL_NES  = 3
	RDMA_NL_C4IW = 4

	RDMA_NL_GROUP_IWPM = 2

	IWPM_UABI_VERSION = 4

	IWPM_IFNAME_SIZE   = 16
	IWPM_DEVNAME_SIZE  = 32
	IWPM_ULIBNAME_SIZE = 32

	// Mapping flags carried by IWPM_NLA_MANAGE_FLAGS and IWPM_NLA_QUERY_FLAGS.
	IWPM_FLAGS_NO_PORT_MAP = 1
)

// Port mapper operations.
const (
	RDMA_NL_IWPM_REG_PID uint16 = iota
	RDMA_NL_IWPM_ADD_MAPPING
	RDMA_NL_IWPM_QUERY_MAPPING
	RDMA_NL_IWPM_REMOVE_MAPPING
	RDMA_NL_IWPM_REMOTE_INFO
	RDMA_NL_IWPM_HANDLE_ERR
	RDMA_NL_IWPM_MAPINFO
	RDMA_NL_IWPM_MAPINFO_NUM
	RDMA_NL_IWPM_HELLO
	RDMA_NL_IWPM_NUM_OPS
)

// RDMA_NL_GET_TYPE builds a netlink message type out of an RDMA netlink
// client and one of its operations.
func RDMA_NL_GET_TYPE(client, op uint16) uint16 {
	return client<<10 + op
}

func RDMA_NL_GET_CLIENT(msgType uint16) uint16 {
	return (msgType & (((1 << 6) - 1) << 10)) >> 10
}

func RDMA_NL_GET_OP(msgType uint16) uint16 {
	return msgType & ((1 << 10) - 1)
}

// Attributes of RDMA_NL_IWPM_REG_PID requests.
const (
	IWPM_NLA_REG_PID_UNSPEC = iota
	IWPM_NLA_REG_PID_SEQ
	IWPM_NLA_REG_IF_NAME
	IWPM_NLA_REG_IBDEV_NAME
	IWPM_NLA_REG_ULIB_NAME
	IWPM_NLA_REG_PID_MAX
)

// Attributes of RDMA_NL_IWPM_REG_PID responses.
const (
	IWPM_NLA_RREG_PID_UNSPEC = iota
	IWPM_NLA_RREG_PID_SEQ
	IWPM_NLA_RREG_IBDEV_NAME
	IWPM_NLA_RREG_ULIB_NAME
	IWPM_NLA_RREG_ULIB_VER
	IWPM_NLA_RREG_PID_ERR
	IWPM_NLA_RREG_PID_MAX
)

// Attributes of RDMA_NL_IWPM_ADD_MAPPING and RDMA_NL_IWPM_REMOVE_MAPPING
// requests.
const (
	IWPM_NLA_MANAGE_MAPPING_UNSPEC = iota
	IWPM_NLA_MANAGE_MAPPING_SEQ
	IWPM_NLA_MANAGE_ADDR
	IWPM_NLA_MANAGE_FLAGS
	IWPM_NLA_MANAGE_MAPPING_MAX
)

// Attributes of RDMA_NL_IWPM_ADD_MAPPING responses.
const (
	IWPM_NLA_RMANAGE_MAPPING_UNSPEC = iota
	IWPM_NLA_RMANAGE_MAPPING_SEQ
	IWPM_NLA_RMANAGE_ADDR
	IWPM_NLA_RMANAGE_MAPPED_LOC_ADDR
	IWPM_NLA_RMANAGE_MAPPING_ERR
	IWPM_NLA_RMANAGE_MAPPING_MAX
)

// Attributes of RDMA_NL_IWPM_QUERY_MAPPING requests.
const (
	IWPM_NLA_QUERY_MAPPING_UNSPEC = iota
	IWPM_NLA_QUERY_MAPPING_SEQ
	IWPM_NLA_QUERY_LOCAL_ADDR
	IWPM_NLA_QUERY_REMOTE_ADDR
	IWPM_NLA_QUERY_FLAGS
	IWPM_NLA_QUERY_MAPPING_MAX
)

// Attributes of RDMA_NL_IWPM_QUERY_MAPPING responses and
// RDMA_NL_IWPM_REMOTE_INFO messages.
const (
	IWPM_NLA_RQUERY_MAPPING_UNSPEC = iota
	IWPM_NLA_RQUERY_MAPPING_SEQ
	IWPM_NLA_RQUERY_LOCAL_ADDR
	IWPM_NLA_RQUERY_REMOTE_ADDR
	IWPM_NLA_RQUERY_MAPPED_LOC_ADDR
	IWPM_NLA_RQUERY_MAPPED_REM_ADDR
	IWPM_NLA_RQUERY_MAPPING_ERR
	IWPM_NLA_RQUERY_MAPPING_MAX
)

// Attributes of RDMA_NL_IWPM_MAPINFO requests.
const (
	IWPM_NLA_MAPINFO_REQ_UNSPEC = iota
	IWPM_NLA_MAPINFO_ULIB_NAME
	IWPM_NLA_MAPINFO_ULIB_VER
	IWPM_NLA_MAPINFO_REQ_MAX
)

// Attributes of RDMA_NL_IWPM_MAPINFO messages.
const (
	IWPM_NLA_MAPINFO_UNSPEC = iota
	IWPM_NLA_MAPINFO_LOCAL_ADDR
	IWPM_NLA_MAPINFO_MAPPED_ADDR
	IWPM_NLA_MAPINFO_FLAGS
	IWPM_NLA_MAPINFO_MAX
)

// Attributes of RDMA_NL_IWPM_MAPINFO_NUM messages.
const (
	IWPM_NLA_MAPINFO_NUM_UNSPEC = iota
	IWPM_NLA_MAPINFO_SEQ
	IWPM_NLA_MAPINFO_SEND_NUM
	IWPM_NLA_MAPINFO_ACK_NUM
	IWPM_NLA_MAPINFO_NUM_MAX
)

// Attributes of RDMA_NL_IWPM_HANDLE_ERR messages.
const (
	IWPM_NLA_ERR_UNSPEC = iota
	IWPM_NLA_ERR_SEQ
	IWPM_NLA_ERR_CODE
	IWPM_NLA_ERR_MAX
)

// Attributes of RDMA_NL_IWPM_HELLO messages.
const (
	IWPM_NLA_HELLO_UNSPEC = iota
	IWPM_NLA_HELLO_ABI_VERSION
	IWPM_NLA_HELLO_MAX
)

var opNames = map[uint16]string{
	RDMA_NL_IWPM_REG_PID:        "REG_PID",
	RDMA_NL_IWPM_ADD_MAPPING:    "ADD_MAPPING",
	RDMA_NL_IWPM_QUERY_MAPPING:  "QUERY_MAPPING",
	RDMA_NL_IWPM_REMOVE_MAPPING: "REMOVE_MAPPING",
	RDMA_NL_IWPM_REMOTE_INFO:    "REMOTE_INFO",
	RDMA_NL_IWPM_HANDLE_ERR:     "HANDLE_ERR",
	RDMA_NL_IWPM_MAPINFO:        "MAPINFO",
	RDMA_NL_IWPM_MAPINFO_NUM:    "MAPINFO_NUM",
	RDMA_NL_IWPM_HELLO:          "HELLO",
}

// OpName returns a human readable name for the operation encoded in a
// netlink message type.
func OpName(msgType uint16) string {
	name, ok := opNames[RDMA_NL_GET_OP(msgType)]
	if !ok {
		return "UNKNOWN"
	}
	return name
}
