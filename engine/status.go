package engine

import "strconv"

// Status is a LibRaw_errors code.
type Status int32

const (
	StatusSuccess                        Status = 0
	StatusUnspecifiedError               Status = -1
	StatusFileUnsupported                Status = -2
	StatusRequestForNonexistentImage     Status = -3
	StatusOutOfOrderCall                 Status = -4
	StatusNoThumbnail                    Status = -5
	StatusUnsupportedThumbnail           Status = -6
	StatusInputClosed                    Status = -7
	StatusNotImplemented                 Status = -8
	StatusRequestForNonexistentThumbnail Status = -9
	StatusInsufficientMemory             Status = -100007
	StatusDataError                      Status = -100008
	StatusIOError                        Status = -100009
	StatusCancelledByCallback            Status = -100010
	StatusBadCrop                        Status = -100011
	StatusTooBig                         Status = -100012
	StatusMempoolOverflow                Status = -100013
)

var statusText = map[Status]string{
	StatusSuccess:                        "No error",
	StatusUnspecifiedError:               "Unspecified error",
	StatusFileUnsupported:                "Unsupported file format or not RAW file",
	StatusRequestForNonexistentImage:     "Request for nonexisting image number",
	StatusOutOfOrderCall:                 "Out of order call of libraw function",
	StatusNoThumbnail:                    "No thumbnail in file",
	StatusUnsupportedThumbnail:           "Unsupported thumbnail format",
	StatusInputClosed:                    "No input stream, or input stream closed",
	StatusNotImplemented:                 "Decoder not implemented for this data format",
	StatusRequestForNonexistentThumbnail: "Request for nonexisting thumbnail number",
	StatusInsufficientMemory:             "Unsufficient memory",
	StatusDataError:                      "Corrupted data or unexpected EOF",
	StatusIOError:                        "Input/output error",
	StatusCancelledByCallback:            "Cancelled by user callback",
	StatusBadCrop:                        "Bad crop box",
	StatusTooBig:                         "Image too big for processing",
	StatusMempoolOverflow:                "Libraw internal mempool overflowed",
}

// String matches libraw_strerror.
func (s Status) String() string {
	if text, ok := statusText[s]; ok {
		return text
	}
	return "Unknown error code " + strconv.Itoa(int(s))
}

// OK reports LIBRAW_SUCCESS.
func (s Status) OK() bool {
	return s == StatusSuccess
}

// Fatal reports codes after which the processor must be recycled.
func (s Status) Fatal() bool {
	return s < -100000
}
