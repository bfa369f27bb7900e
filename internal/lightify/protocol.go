package lightify

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"
)

// Gateway frame layout (all integers little-endian):
//
//	request:  length(2) flag(1) command(1) seq(4) body...
//	response: length(2) flag(1) command(1) seq(4) status(1) body...
//
// length counts every byte after the length field itself.
const (
	lengthSize         = 2
	requestHeaderSize  = 8
	responseHeaderSize = 9
	maxFrameSize       = 64 * 1024
)

// Gateway commands.
const (
	cmdAllLightStatus = 0x13
	cmdGroupList      = 0x1E
	cmdSceneList      = 0x1F
	cmdLuminance      = 0x31
	cmdOnOff          = 0x32
	cmdTemperature    = 0x33
	cmdColour         = 0x36
)

// Request flags selecting the target kind.
const (
	flagLight = 0x00
	flagGroup = 0x02
)

// Record sizes in list responses.
const (
	nameSize        = 16
	targetSize      = 8
	lightRecordSize = 50
	groupRecordSize = 2 + nameSize
	sceneRecordSize = 4 + nameSize
)

// response is a decoded gateway reply.
type response struct {
	flag    uint8
	command uint8
	seq     uint32
	status  uint8
	body    []byte
}

// groupRecord and sceneRecord are list entries before derived state is applied.
type groupRecord struct {
	idx  uint16
	name string
}

type sceneRecord struct {
	idx   uint16
	group uint16
	name  string
}

// encodeRequest builds a complete request frame.
//
// Parameters:
//   - flag: flagLight or flagGroup
//   - command: Gateway command byte
//   - seq: Sequence number echoed back by the gateway
//   - body: Command-specific payload (may be nil)
//
// Returns:
//   - []byte: Frame ready to be written to the socket
func encodeRequest(flag, command uint8, seq uint32, body []byte) []byte {
	buf := make([]byte, requestHeaderSize+len(body))
	binary.LittleEndian.PutUint16(buf[0:2], uint16(requestHeaderSize-lengthSize+len(body))) //nolint:gosec // bounded by small bodies
	buf[2] = flag
	buf[3] = command
	binary.LittleEndian.PutUint32(buf[4:8], seq)
	copy(buf[requestHeaderSize:], body)
	return buf
}

// readFrame reads one length-prefixed frame and returns the bytes after the
// length field.
func readFrame(r io.Reader) ([]byte, error) {
	var sizeBuf [lengthSize]byte
	if _, err := io.ReadFull(r, sizeBuf[:]); err != nil {
		return nil, err
	}
	size := int(binary.LittleEndian.Uint16(sizeBuf[:]))
	if size < responseHeaderSize-lengthSize || size > maxFrameSize {
		return nil, fmt.Errorf("%w: frame length %d", ErrInvalidResponse, size)
	}

	frame := make([]byte, size)
	if _, err := io.ReadFull(r, frame); err != nil {
		return nil, err
	}
	return frame, nil
}

// parseResponse decodes a frame returned by readFrame.
func parseResponse(frame []byte) (response, error) {
	if len(frame) < responseHeaderSize-lengthSize {
		return response{}, fmt.Errorf("%w: response too short (%d bytes)", ErrInvalidResponse, len(frame))
	}
	return response{
		flag:    frame[0],
		command: frame[1],
		seq:     binary.LittleEndian.Uint32(frame[2:6]),
		status:  frame[6],
		body:    frame[7:],
	}, nil
}

// encodeTarget returns the 8-byte target field: the light address, or the
// group index zero-padded.
func encodeTarget(t Target) []byte {
	buf := make([]byte, targetSize)
	if t.group {
		binary.LittleEndian.PutUint16(buf[0:2], uint16(t.addr)) //nolint:gosec // group targets hold a uint16 index
		return buf
	}
	binary.LittleEndian.PutUint64(buf, t.addr)
	return buf
}

func targetFlag(t Target) uint8 {
	if t.group {
		return flagGroup
	}
	return flagLight
}

// listRecords validates a "count + fixed-size records" body and returns the
// record bytes.
func listRecords(body []byte, recordSize int) ([]byte, int, error) {
	if len(body) < 2 {
		return nil, 0, fmt.Errorf("%w: list body too short", ErrInvalidResponse)
	}
	count := int(binary.LittleEndian.Uint16(body[0:2]))
	records := body[2:]
	if len(records) < count*recordSize {
		return nil, 0, fmt.Errorf("%w: %d records need %d bytes, got %d",
			ErrInvalidResponse, count, count*recordSize, len(records))
	}
	return records, count, nil
}

// parseLights decodes an all-light-status body.
//
// Light record (50 bytes): idx(2) addr(8) type(1) version(4) reachable(1)
// groups(2) on(1) lum(1) temp(2) r(1) g(1) b(1) alpha(1) name(16)
// last_seen(4) reserved(4).
func parseLights(body []byte) ([]Light, error) {
	records, count, err := listRecords(body, lightRecordSize)
	if err != nil {
		return nil, err
	}

	lights := make([]Light, 0, count)
	for i := 0; i < count; i++ {
		rec := records[i*lightRecordSize : (i+1)*lightRecordSize]
		lights = append(lights, Light{
			Idx:       binary.LittleEndian.Uint16(rec[0:2]),
			Addr:      binary.LittleEndian.Uint64(rec[2:10]),
			TypeID:    rec[10],
			Version:   fmt.Sprintf("%02X%02X%02X%02X", rec[11], rec[12], rec[13], rec[14]),
			Reachable: rec[15] != 0,
			Groups:    groupsFromMask(binary.LittleEndian.Uint16(rec[16:18])),
			On:        rec[18] != 0,
			Lum:       int(rec[19]),
			Temp:      int(binary.LittleEndian.Uint16(rec[20:22])),
			Red:       int(rec[22]),
			Green:     int(rec[23]),
			Blue:      int(rec[24]),
			Name:      decodeName(rec[26:42]),
			LastSeen:  binary.LittleEndian.Uint32(rec[42:46]),
		})
	}
	return lights, nil
}

// parseGroups decodes a group-list body: idx(2) name(16) per record.
func parseGroups(body []byte) ([]groupRecord, error) {
	records, count, err := listRecords(body, groupRecordSize)
	if err != nil {
		return nil, err
	}

	groups := make([]groupRecord, 0, count)
	for i := 0; i < count; i++ {
		rec := records[i*groupRecordSize : (i+1)*groupRecordSize]
		groups = append(groups, groupRecord{
			idx:  binary.LittleEndian.Uint16(rec[0:2]),
			name: decodeName(rec[2:18]),
		})
	}
	return groups, nil
}

// parseScenes decodes a scene-list body: idx(2) group(2) name(16) per record.
func parseScenes(body []byte) ([]sceneRecord, error) {
	records, count, err := listRecords(body, sceneRecordSize)
	if err != nil {
		return nil, err
	}

	scenes := make([]sceneRecord, 0, count)
	for i := 0; i < count; i++ {
		rec := records[i*sceneRecordSize : (i+1)*sceneRecordSize]
		scenes = append(scenes, sceneRecord{
			idx:   binary.LittleEndian.Uint16(rec[0:2]),
			group: binary.LittleEndian.Uint16(rec[2:4]),
			name:  decodeName(rec[4:20]),
		})
	}
	return scenes, nil
}

// groupsFromMask expands the 16-bit membership mask; bit n means group n+1.
func groupsFromMask(mask uint16) []uint16 {
	var groups []uint16
	for bit := uint16(0); bit < 16; bit++ {
		if mask&(1<<bit) != 0 {
			groups = append(groups, bit+1)
		}
	}
	return groups
}

func decodeName(b []byte) string {
	return strings.TrimRight(string(b), "\x00 ")
}
