// Package control implements the finix control socket: a small
// binary protocol over a Unix domain socket that finixctl uses to
// query the daemon, trigger configuration reloads and request
// shutdown.
package control

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/finixos/finix/pkg/config"
	"github.com/finixos/finix/pkg/service"
)

// ProtocolVersion of the finix control protocol.
const ProtocolVersion uint16 = 1

// Command codes (client to server).
const (
	CmdQueryVersion uint8 = 0
	CmdReload       uint8 = 1
	CmdListEntries  uint8 = 2
	CmdShutdown     uint8 = 3
	CmdRunlevel     uint8 = 4
)

// Reply codes (server to client).
const (
	RplyACK       uint8 = 50
	RplyNAK       uint8 = 51
	RplyBadReq    uint8 = 52
	RplyVersion   uint8 = 58
	RplyEntryInfo uint8 = 62
	RplyListDone  uint8 = 63
	RplyRunlevel  uint8 = 64
)

// MaxPayloadSize bounds a single packet payload.
const MaxPayloadSize = 4096

// WritePacket writes a packet: [type(1)][payloadLen(2)][payload(N)].
func WritePacket(w io.Writer, pktType uint8, payload []byte) error {
	if len(payload) > MaxPayloadSize {
		return fmt.Errorf("payload too large: %d > %d", len(payload), MaxPayloadSize)
	}
	hdr := [3]byte{pktType}
	binary.LittleEndian.PutUint16(hdr[1:], uint16(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return err
		}
	}
	return nil
}

// ReadPacket reads a packet: [type(1)][payloadLen(2)][payload(N)].
func ReadPacket(r io.Reader) (pktType uint8, payload []byte, err error) {
	var hdr [3]byte
	if _, err = io.ReadFull(r, hdr[:]); err != nil {
		return 0, nil, err
	}
	pktType = hdr[0]
	pLen := binary.LittleEndian.Uint16(hdr[1:])
	if pLen > MaxPayloadSize {
		return 0, nil, fmt.Errorf("payload too large: %d", pLen)
	}
	if pLen > 0 {
		payload = make([]byte, pLen)
		if _, err = io.ReadFull(r, payload); err != nil {
			return 0, nil, err
		}
	}
	return pktType, payload, nil
}

// EntryInfo is the wire form of one registry entry.
type EntryInfo struct {
	Key       string
	Kind      config.DirectiveKind
	Runlevels config.RunlevelMask
	Removal   bool
}

// EncodeEntryInfo encodes one registry entry.
// Format: keyLen(2) + key(N) + kind(1) + runlevels(2) + flags(1).
func EncodeEntryInfo(en *service.Entry) []byte {
	key := en.Key()
	buf := make([]byte, 2+len(key)+4)
	binary.LittleEndian.PutUint16(buf, uint16(len(key)))
	copy(buf[2:], key)
	off := 2 + len(key)
	buf[off] = uint8(en.Kind)
	binary.LittleEndian.PutUint16(buf[off+1:], uint16(en.Runlevels))
	if en.MarkedForRemoval() {
		buf[off+3] = 1
	}
	return buf
}

// DecodeEntryInfo decodes one registry entry, returning the entry
// and the number of bytes consumed.
func DecodeEntryInfo(data []byte) (EntryInfo, int, error) {
	if len(data) < 2 {
		return EntryInfo{}, 0, fmt.Errorf("data too short for entry key length")
	}
	keyLen := int(binary.LittleEndian.Uint16(data))
	if len(data) < 2+keyLen+4 {
		return EntryInfo{}, 0, fmt.Errorf("data too short for entry: need %d, have %d", 2+keyLen+4, len(data))
	}
	off := 2 + keyLen
	info := EntryInfo{
		Key:       string(data[2:off]),
		Kind:      config.DirectiveKind(data[off]),
		Runlevels: config.RunlevelMask(binary.LittleEndian.Uint16(data[off+1:])),
		Removal:   data[off+3] != 0,
	}
	return info, off + 4, nil
}

// EncodeVersion encodes the protocol version reply payload.
func EncodeVersion() []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, ProtocolVersion)
	return b
}

// DecodeVersion decodes a version reply payload.
func DecodeVersion(data []byte) (uint16, error) {
	if len(data) < 2 {
		return 0, fmt.Errorf("data too short for version: need 2, have %d", len(data))
	}
	return binary.LittleEndian.Uint16(data), nil
}
