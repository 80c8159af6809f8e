package geocom

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	requestPrefix = "%R1Q,"
	replyPrefix   = "%R1P,"
)

// Return codes that still carry usable values.
const (
	rcOK                = 0
	rcAccuracyWarning   = 1283 // TMC_ACCURACY_GUARANTEE
	rcAngleOnlyWarning  = 1284 // TMC_ANGLE_OK, distance not valid
	rcNoTarget          = 8710
	rcPositioningFailed = 8704
)

var deviceMessages = map[int]string{
	rcAccuracyWarning:   "accuracy not guaranteed",
	rcAngleOnlyWarning:  "angles valid, no distance",
	1285:                "angles without full correction",
	1289:                "distance measurement error",
	1290:                "measurement subsystem busy",
	rcPositioningFailed: "positioning timed out",
	rcNoTarget:          "no target detected",
}

// ErrMalformedReply is wrapped by every frame parse failure.
var ErrMalformedReply = errors.New("malformed GeoCOM reply")

// frame is a decoded %R1P reply line.
type frame struct {
	comRC  int
	trID   int
	rc     int
	values []string
}

// encodeRequest builds "%R1Q,<rpc>,<trID>:<args>". The instrument echoes
// trID in the reply header.
func encodeRequest(rpc, trID int, args []string) string {
	return fmt.Sprintf("%s%d,%d:%s", requestPrefix, rpc, trID, strings.Join(args, ","))
}

// answers returns a reply filter for transaction trID. Lines that do not
// parse are accepted so Decode can report them; well-formed replies to
// other transactions are late answers to earlier requests.
func answers(trID int) func(line string) bool {
	return func(line string) bool {
		f, err := parseReply(line)
		return err != nil || f.trID == trID
	}
}

// parseReply splits "%R1P,<comRC>,<tr>:<rc>[,<v>...]".
func parseReply(line string) (frame, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, replyPrefix) {
		return frame{}, fmt.Errorf("%w: missing %s prefix in %q", ErrMalformedReply, replyPrefix, line)
	}
	header, body, ok := strings.Cut(line[len(replyPrefix):], ":")
	if !ok {
		return frame{}, fmt.Errorf("%w: missing ':' in %q", ErrMalformedReply, line)
	}

	var f frame
	hdr := strings.Split(header, ",")
	if len(hdr) != 2 {
		return frame{}, fmt.Errorf("%w: header %q", ErrMalformedReply, header)
	}
	var err error
	if f.comRC, err = strconv.Atoi(hdr[0]); err != nil {
		return frame{}, fmt.Errorf("%w: comRC %q", ErrMalformedReply, hdr[0])
	}
	if f.trID, err = strconv.Atoi(hdr[1]); err != nil {
		return frame{}, fmt.Errorf("%w: transaction id %q", ErrMalformedReply, hdr[1])
	}

	parts := strings.Split(body, ",")
	if f.rc, err = strconv.Atoi(strings.TrimSpace(parts[0])); err != nil {
		return frame{}, fmt.Errorf("%w: return code %q", ErrMalformedReply, parts[0])
	}
	for _, p := range parts[1:] {
		f.values = append(f.values, strings.TrimSpace(p))
	}
	return f, nil
}

func isWarning(rc int) bool {
	return rc == rcAccuracyWarning || rc == rcAngleOnlyWarning
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
