package control

import (
	"fmt"
	"io"
	"net"

	"github.com/finixos/finix/pkg/shutdown"
)

// Connection is a single control client.
type Connection struct {
	server *Server
	conn   net.Conn
}

func newConnection(server *Server, conn net.Conn) *Connection {
	return &Connection{server: server, conn: conn}
}

func (c *Connection) close() {
	c.conn.Close()
}

func (c *Connection) serve() {
	defer c.close()

	for {
		select {
		case <-c.server.ctx.Done():
			return
		default:
		}

		cmd, payload, err := ReadPacket(c.conn)
		if err != nil {
			if err != io.EOF {
				c.server.log.Debug("Control connection read error: %v", err)
			}
			return
		}

		if err := c.dispatch(cmd, payload); err != nil {
			c.server.log.Debug("Control command dispatch error: %v", err)
			return
		}
	}
}

func (c *Connection) dispatch(cmd uint8, payload []byte) error {
	switch cmd {
	case CmdQueryVersion:
		return WritePacket(c.conn, RplyVersion, EncodeVersion())

	case CmdReload:
		return c.handleReload()

	case CmdListEntries:
		return c.handleListEntries()

	case CmdShutdown:
		return c.handleShutdown(payload)

	case CmdRunlevel:
		return c.handleRunlevel()

	default:
		return WritePacket(c.conn, RplyBadReq, nil)
	}
}

func (c *Connection) handleReload() error {
	if c.server.ReloadFunc == nil {
		return WritePacket(c.conn, RplyNAK, nil)
	}
	if err := c.server.ReloadFunc(); err != nil {
		c.server.log.Error("Reload via control socket failed: %v", err)
		return WritePacket(c.conn, RplyNAK, []byte(err.Error()))
	}
	return WritePacket(c.conn, RplyACK, nil)
}

func (c *Connection) handleListEntries() error {
	for _, en := range c.server.registry.List() {
		if err := WritePacket(c.conn, RplyEntryInfo, EncodeEntryInfo(en)); err != nil {
			return err
		}
	}
	return WritePacket(c.conn, RplyListDone, nil)
}

func (c *Connection) handleShutdown(payload []byte) error {
	if len(payload) < 1 {
		return WritePacket(c.conn, RplyBadReq, nil)
	}
	t := shutdown.Type(payload[0])
	if t != shutdown.Halt && t != shutdown.Poweroff && t != shutdown.Reboot {
		return WritePacket(c.conn, RplyBadReq, nil)
	}
	if c.server.ShutdownFunc == nil {
		return WritePacket(c.conn, RplyNAK, nil)
	}
	if err := WritePacket(c.conn, RplyACK, nil); err != nil {
		return err
	}
	c.server.ShutdownFunc(t)
	return nil
}

func (c *Connection) handleRunlevel() error {
	payload := []byte(fmt.Sprintf("%d", c.server.engine.Runlevel()))
	return WritePacket(c.conn, RplyRunlevel, payload)
}
