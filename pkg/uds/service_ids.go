package uds

const (
	/* DIAGNOSTIC AND COMMUNICATION MANAGEMENT FUNCTIONAL UNIT */
	DIAGNOSTIC_SESSION_CONTROL = 0x10
	ECU_RESET                  = 0x11
	SECURITY_ACCESS            = 0x27
	COMMUNICATION_CONTROL      = 0x28
	TESTER_PRESENT             = 0x3E
	ACCESS_TIMING_PARAMETER    = 0x83
	SECURED_DATA_TRANSMISSION  = 0x84
	CONTROL_DTC_SETTING        = 0x85
	RESPONSE_ON_EVENT          = 0x86
	LINK_CONTROL               = 0x87

	/* DATA TRANSMISSION FUNCTIONAL UNIT */
	READ_DATA_BY_IDENTIFIER            = 0x22
	READ_MEMORY_BY_ADDRESS             = 0x23
	READ_SCALING_DATA_BY_IDENTIFIER    = 0x24
	READ_DATA_BY_PERIODIC_IDENTIFIER   = 0x2A
	DYNAMICALLY_DEFINE_DATA_IDENTIFIER = 0x2C
	DEFINE_PID_BY_MEMORY_ADDRESS       = 0x2D
	WRITE_DATA_BY_IDENTIFIER           = 0x2E
	WRITE_MEMORY_BY_ADDRESS            = 0x3D

	/* STORED DATA TRANSMISSION FUNCTIONAL UNIT */
	CLEAR_DIAGNOSTIC_INFORMATION = 0x14
	READ_DTC_INFORMATION         = 0x19

	/* INPUT OUTPUT CONTROL FUNCTIONAL UNIT */
	RETURN_TO_NORMAL                   = 0x20
	INPUT_OUTPUT_CONTROL_BY_IDENTIFIER = 0x2F

	/* REMOTE ACTIVATION OF ROUTINE FUNCTIONAL UNIT */
	ROUTINE_CONTROL = 0x31

	/* UPLOAD DOWNLOAD FUNCTIONAL UNIT */
	REQUEST_DOWNLOAD      = 0x34
	REQUEST_UPLOAD        = 0x35
	TRANSFER_DATA         = 0x36
	REQUEST_TRANSFER_EXIT = 0x37
	REQUEST_FILE_TRANSFER = 0x38

	NEGATIVE_RESPONSE = 0x7F

	// A positive response echoes the request service id with this bit set
	POSITIVE_RESPONSE_OFFSET = 0x40
)

// Diagnostic session types
const (
	DEFAULT_SESSION                  = 0x01
	PROGRAMMING_SESSION              = 0x02
	EXTENDED_DIAGNOSTIC_SESSION      = 0x03
	SAFETY_SYSTEM_DIAGNOSTIC_SESSION = 0x04
)

// ECU reset types
const (
	HARD_RESET                   = 0x01
	KEY_OFF_ON_RESET             = 0x02
	SOFT_RESET                   = 0x03
	ENABLE_RAPID_POWER_SHUTDOWN  = 0x04
	DISABLE_RAPID_POWER_SHUTDOWN = 0x05

	// Sub-function bit asking the server not to answer
	SUPPRESS_POSITIVE_RESPONSE = 0x80
)

var serviceNames = map[byte]string{
	DIAGNOSTIC_SESSION_CONTROL:         "DIAGNOSTIC_SESSION_CONTROL",
	ECU_RESET:                          "ECU_RESET",
	CLEAR_DIAGNOSTIC_INFORMATION:       "CLEAR_DIAGNOSTIC_INFORMATION",
	READ_DTC_INFORMATION:               "READ_DTC_INFORMATION",
	RETURN_TO_NORMAL:                   "RETURN_TO_NORMAL",
	READ_DATA_BY_IDENTIFIER:            "READ_DATA_BY_IDENTIFIER",
	READ_MEMORY_BY_ADDRESS:             "READ_MEMORY_BY_ADDRESS",
	READ_SCALING_DATA_BY_IDENTIFIER:    "READ_SCALING_DATA_BY_IDENTIFIER",
	SECURITY_ACCESS:                    "SECURITY_ACCESS",
	COMMUNICATION_CONTROL:              "COMMUNICATION_CONTROL",
	READ_DATA_BY_PERIODIC_IDENTIFIER:   "READ_DATA_BY_PERIODIC_IDENTIFIER",
	DYNAMICALLY_DEFINE_DATA_IDENTIFIER: "DYNAMICALLY_DEFINE_DATA_IDENTIFIER",
	DEFINE_PID_BY_MEMORY_ADDRESS:       "DEFINE_PID_BY_MEMORY_ADDRESS",
	WRITE_DATA_BY_IDENTIFIER:           "WRITE_DATA_BY_IDENTIFIER",
	INPUT_OUTPUT_CONTROL_BY_IDENTIFIER: "INPUT_OUTPUT_CONTROL_BY_IDENTIFIER",
	ROUTINE_CONTROL:                    "ROUTINE_CONTROL",
	REQUEST_DOWNLOAD:                   "REQUEST_DOWNLOAD",
	REQUEST_UPLOAD:                     "REQUEST_UPLOAD",
	TRANSFER_DATA:                      "TRANSFER_DATA",
	REQUEST_TRANSFER_EXIT:              "REQUEST_TRANSFER_EXIT",
	REQUEST_FILE_TRANSFER:              "REQUEST_FILE_TRANSFER",
	WRITE_MEMORY_BY_ADDRESS:            "WRITE_MEMORY_BY_ADDRESS",
	TESTER_PRESENT:                     "TESTER_PRESENT",
	NEGATIVE_RESPONSE:                  "NEGATIVE_RESPONSE",
	ACCESS_TIMING_PARAMETER:            "ACCESS_TIMING_PARAMETER",
	SECURED_DATA_TRANSMISSION:          "SECURED_DATA_TRANSMISSION",
	CONTROL_DTC_SETTING:                "CONTROL_DTC_SETTING",
	RESPONSE_ON_EVENT:                  "RESPONSE_ON_EVENT",
	LINK_CONTROL:                       "LINK_CONTROL",
}

// ServiceName returns the name of a service id, or "Unknown service".
func ServiceName(sid byte) string {
	if name, ok := serviceNames[sid]; ok {
		return name
	}
	return "Unknown service"
}

// ResponseID returns the service id a positive response to sid carries.
func ResponseID(sid byte) byte {
	return sid + POSITIVE_RESPONSE_OFFSET
}
