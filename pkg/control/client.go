package control

import (
	"fmt"
	"net"
	"time"

	"github.com/finixos/finix/pkg/shutdown"
)

// Client is the finixctl side of the control protocol.
type Client struct {
	conn net.Conn
}

// Dial connects to the control socket.
func Dial(sockPath string) (*Client, error) {
	conn, err := net.DialTimeout("unix", sockPath, 5*time.Second)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// Close releases the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) roundTrip(cmd uint8, payload []byte) (uint8, []byte, error) {
	if err := WritePacket(c.conn, cmd, payload); err != nil {
		return 0, nil, err
	}
	return ReadPacket(c.conn)
}

// Version queries the daemon's protocol version.
func (c *Client) Version() (uint16, error) {
	rply, payload, err := c.roundTrip(CmdQueryVersion, nil)
	if err != nil {
		return 0, err
	}
	if rply != RplyVersion {
		return 0, fmt.Errorf("unexpected reply %d", rply)
	}
	return DecodeVersion(payload)
}

// Reload asks the daemon to replay its configuration.
func (c *Client) Reload() error {
	rply, payload, err := c.roundTrip(CmdReload, nil)
	if err != nil {
		return err
	}
	switch rply {
	case RplyACK:
		return nil
	case RplyNAK:
		if len(payload) > 0 {
			return fmt.Errorf("reload failed: %s", payload)
		}
		return fmt.Errorf("reload refused")
	default:
		return fmt.Errorf("unexpected reply %d", rply)
	}
}

// ListEntries retrieves all registered entries.
func (c *Client) ListEntries() ([]EntryInfo, error) {
	if err := WritePacket(c.conn, CmdListEntries, nil); err != nil {
		return nil, err
	}

	var entries []EntryInfo
	for {
		rply, payload, err := ReadPacket(c.conn)
		if err != nil {
			return nil, err
		}
		switch rply {
		case RplyEntryInfo:
			info, _, err := DecodeEntryInfo(payload)
			if err != nil {
				return nil, err
			}
			entries = append(entries, info)
		case RplyListDone:
			return entries, nil
		default:
			return nil, fmt.Errorf("unexpected reply %d", rply)
		}
	}
}

// Runlevel queries the daemon's current runlevel.
func (c *Client) Runlevel() (string, error) {
	rply, payload, err := c.roundTrip(CmdRunlevel, nil)
	if err != nil {
		return "", err
	}
	if rply != RplyRunlevel {
		return "", fmt.Errorf("unexpected reply %d", rply)
	}
	return string(payload), nil
}

// Shutdown requests a system shutdown of the given type.
func (c *Client) Shutdown(t shutdown.Type) error {
	rply, _, err := c.roundTrip(CmdShutdown, []byte{byte(t)})
	if err != nil {
		return err
	}
	switch rply {
	case RplyACK:
		return nil
	case RplyNAK:
		return fmt.Errorf("shutdown refused")
	default:
		return fmt.Errorf("unexpected reply %d", rply)
	}
}
