package uds

import (
	"fmt"
)

const (
	POSITIVE_RESPONSE                              = 0x00
	GENERAL_REJECT                                 = 0x10
	SERVICE_NOT_SUPPORTED                          = 0x11
	SUB_FUNCTION_NOT_SUPPORTED                     = 0x12
	INCORRECT_MESSAGE_LENGTH_OR_INVALID_FORMAT     = 0x13
	RESPONSE_TOO_LONG                              = 0x14
	BUSY_REPEAT_REQUEST                            = 0x21
	CONDITIONS_NOT_CORRECT                         = 0x22
	REQUEST_SEQUENCE_ERROR                         = 0x24
	NO_RESPONSE_FROM_SUBNET_COMPONENT              = 0x25
	FAILURE_PREVENTS_EXECUTION_OF_REQUESTED_ACTION = 0x26
	REQUEST_OUT_OF_RANGE                           = 0x31
	SECURITY_ACCESS_DENIED                         = 0x33
	INVALID_KEY                                    = 0x35
	EXCEEDED_NUMBER_OF_ATTEMPTS                    = 0x36
	REQUIRED_TIME_DELAY_NOT_EXPIRED                = 0x37
	UPLOAD_DOWNLOAD_NOT_ACCEPTED                   = 0x70
	TRANSFER_DATA_SUSPENDED                        = 0x71
	GENERAL_PROGRAMMING_FAILURE                    = 0x72
	WRONG_BLOCK_SEQUENCE_COUNTER                   = 0x73
	REQUEST_CORRECTLY_RECEIVED_RESPONSE_PENDING    = 0x78
	SUB_FUNCTION_NOT_SUPPORTED_IN_ACTIVE_SESSION   = 0x7E
	SERVICE_NOT_SUPPORTED_IN_ACTIVE_SESSION        = 0x7F
	RPM_TOO_HIGH                                   = 0x81
	RPM_TOO_LOW                                    = 0x82
	ENGINE_IS_RUNNING                              = 0x83
	ENGINE_IS_NOT_RUNNING                          = 0x84
	ENGINE_RUN_TIME_TOO_LOW                        = 0x85
	TEMPERATURE_TOO_HIGH                           = 0x86
	TEMPERATURE_TOO_LOW                            = 0x87
	VEHICLE_SPEED_TOO_HIGH                         = 0x88
	VEHICLE_SPEED_TOO_LOW                          = 0x89
	THROTTLE_PEDAL_TOO_HIGH                        = 0x8A
	THROTTLE_PEDAL_TOO_LOW                         = 0x8B
	TRANSMISSION_RANGE_NOT_IN_NEUTRAL              = 0x8C
	TRANSMISSION_RANGE_NOT_IN_GEAR                 = 0x8D
	BRAKE_SWITCHES_NOT_CLOSED                      = 0x8F
	SHIFT_LEVER_NOT_IN_PARK                        = 0x90
	TORQUE_CONVERTER_CLUTCH_LOCKED                 = 0x91
	VOLTAGE_TOO_HIGH                               = 0x92
	VOLTAGE_TOO_LOW                                = 0x93
)

var nrcNames = map[byte]string{
	POSITIVE_RESPONSE:                              "POSITIVE_RESPONSE",
	GENERAL_REJECT:                                 "GENERAL_REJECT",
	SERVICE_NOT_SUPPORTED:                          "SERVICE_NOT_SUPPORTED",
	SUB_FUNCTION_NOT_SUPPORTED:                     "SUB_FUNCTION_NOT_SUPPORTED",
	INCORRECT_MESSAGE_LENGTH_OR_INVALID_FORMAT:     "INCORRECT_MESSAGE_LENGTH_OR_INVALID_FORMAT",
	RESPONSE_TOO_LONG:                              "RESPONSE_TOO_LONG",
	BUSY_REPEAT_REQUEST:                            "BUSY_REPEAT_REQUEST",
	CONDITIONS_NOT_CORRECT:                         "CONDITIONS_NOT_CORRECT",
	REQUEST_SEQUENCE_ERROR:                         "REQUEST_SEQUENCE_ERROR",
	NO_RESPONSE_FROM_SUBNET_COMPONENT:              "NO_RESPONSE_FROM_SUBNET_COMPONENT",
	FAILURE_PREVENTS_EXECUTION_OF_REQUESTED_ACTION: "FAILURE_PREVENTS_EXECUTION_OF_REQUESTED_ACTION",
	REQUEST_OUT_OF_RANGE:                           "REQUEST_OUT_OF_RANGE",
	SECURITY_ACCESS_DENIED:                         "SECURITY_ACCESS_DENIED",
	INVALID_KEY:                                    "INVALID_KEY",
	EXCEEDED_NUMBER_OF_ATTEMPTS:                    "EXCEEDED_NUMBER_OF_ATTEMPTS",
	REQUIRED_TIME_DELAY_NOT_EXPIRED:                "REQUIRED_TIME_DELAY_NOT_EXPIRED",
	UPLOAD_DOWNLOAD_NOT_ACCEPTED:                   "UPLOAD_DOWNLOAD_NOT_ACCEPTED",
	TRANSFER_DATA_SUSPENDED:                        "TRANSFER_DATA_SUSPENDED",
	GENERAL_PROGRAMMING_FAILURE:                    "GENERAL_PROGRAMMING_FAILURE",
	WRONG_BLOCK_SEQUENCE_COUNTER:                   "WRONG_BLOCK_SEQUENCE_COUNTER",
	REQUEST_CORRECTLY_RECEIVED_RESPONSE_PENDING:    "REQUEST_CORRECTLY_RECEIVED_RESPONSE_PENDING",
	SUB_FUNCTION_NOT_SUPPORTED_IN_ACTIVE_SESSION:   "SUB_FUNCTION_NOT_SUPPORTED_IN_ACTIVE_SESSION",
	SERVICE_NOT_SUPPORTED_IN_ACTIVE_SESSION:        "SERVICE_NOT_SUPPORTED_IN_ACTIVE_SESSION",
	RPM_TOO_HIGH:                                   "RPM_TOO_HIGH",
	RPM_TOO_LOW:                                    "RPM_TOO_LOW",
	ENGINE_IS_RUNNING:                              "ENGINE_IS_RUNNING",
	ENGINE_IS_NOT_RUNNING:                          "ENGINE_IS_NOT_RUNNING",
	ENGINE_RUN_TIME_TOO_LOW:                        "ENGINE_RUN_TIME_TOO_LOW",
	TEMPERATURE_TOO_HIGH:                           "TEMPERATURE_TOO_HIGH",
	TEMPERATURE_TOO_LOW:                            "TEMPERATURE_TOO_LOW",
	VEHICLE_SPEED_TOO_HIGH:                         "VEHICLE_SPEED_TOO_HIGH",
	VEHICLE_SPEED_TOO_LOW:                          "VEHICLE_SPEED_TOO_LOW",
	THROTTLE_PEDAL_TOO_HIGH:                        "THROTTLE_PEDAL_TOO_HIGH",
	THROTTLE_PEDAL_TOO_LOW:                         "THROTTLE_PEDAL_TOO_LOW",
	TRANSMISSION_RANGE_NOT_IN_NEUTRAL:              "TRANSMISSION_RANGE_NOT_IN_NEUTRAL",
	TRANSMISSION_RANGE_NOT_IN_GEAR:                 "TRANSMISSION_RANGE_NOT_IN_GEAR",
	BRAKE_SWITCHES_NOT_CLOSED:                      "BRAKE_SWITCHES_NOT_CLOSED",
	SHIFT_LEVER_NOT_IN_PARK:                        "SHIFT_LEVER_NOT_IN_PARK",
	TORQUE_CONVERTER_CLUTCH_LOCKED:                 "TORQUE_CONVERTER_CLUTCH_LOCKED",
	VOLTAGE_TOO_HIGH:                               "VOLTAGE_TOO_HIGH",
	VOLTAGE_TOO_LOW:                                "VOLTAGE_TOO_LOW",
}

// NRCName returns the canonical name of a negative response code.
func NRCName(code byte) string {
	if name, ok := nrcNames[code]; ok {
		return name
	}
	return "Unknown NRC value"
}

type Error struct {
	ServiceID byte
	Code      byte
}

func (e *Error) Error() string {
	return fmt.Sprintf("service 0x%02X: %s (0x%02X)", e.ServiceID, NRCName(e.Code), e.Code)
}

// Is matches any *Error with the same code, so errors.Is(err, ErrResponsePending)
// works regardless of the service id.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrServiceNotSupported = &Error{Code: SERVICE_NOT_SUPPORTED}
	ErrResponsePending     = &Error{Code: REQUEST_CORRECTLY_RECEIVED_RESPONSE_PENDING}
	ErrSecurityDenied      = &Error{Code: SECURITY_ACCESS_DENIED}
)

// TranslateErrorCode returns nil for a positive response code and an *Error
// for everything else.
func TranslateErrorCode(sid, code byte) error {
	if code == POSITIVE_RESPONSE {
		return nil
	}
	return &Error{ServiceID: sid, Code: code}
}
