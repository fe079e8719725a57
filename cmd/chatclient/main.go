// Package main provides a simple console client for the chat server:
// a messages pane, a status bar, and an input line over a raw TCP session.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"net"
	"strings"

	"github.com/jroimartin/gocui"
)

const (
	viewMessages = "messages"
	viewStatus   = "status"
	viewInput    = "input"
)

type client struct {
	gui  *gocui.Gui
	conn net.Conn
	addr string
}

func main() {
	addr := flag.String("addr", "127.0.0.1:9999", "chat server address")
	flag.Parse()

	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		log.Fatalf("connecting to %s: %v", *addr, err)
	}
	defer conn.Close()

	g, err := gocui.NewGui(gocui.OutputNormal)
	if err != nil {
		log.Fatalf("initializing ui: %v", err)
	}
	defer g.Close()

	c := &client{gui: g, conn: conn, addr: *addr}
	g.SetManagerFunc(c.layout)
	g.Cursor = true

	if err := c.keybindings(); err != nil {
		log.Fatalf("binding keys: %v", err)
	}

	go c.readLoop()

	if err := g.MainLoop(); err != nil && err != gocui.ErrQuit {
		log.Fatalf("ui loop: %v", err)
	}
}

func (c *client) layout(g *gocui.Gui) error {
	maxX, maxY := g.Size()

	if v, err := g.SetView(viewMessages, 0, 0, maxX-1, maxY-5); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = "Messages"
		v.Wrap = true
		v.Autoscroll = true
	}

	if v, err := g.SetView(viewStatus, 0, maxY-4, maxX-1, maxY-3); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Frame = false
		fmt.Fprintf(v, "connected to %s | /help for commands, Ctrl-C to quit", c.addr)
	}

	if v, err := g.SetView(viewInput, 0, maxY-3, maxX-1, maxY-1); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = "Input"
		v.Editable = true
		if _, err := g.SetCurrentView(viewInput); err != nil {
			return err
		}
	}
	return nil
}

func (c *client) keybindings() error {
	if err := c.gui.SetKeybinding("", gocui.KeyCtrlC, gocui.ModNone, c.quit); err != nil {
		return err
	}
	return c.gui.SetKeybinding(viewInput, gocui.KeyEnter, gocui.ModNone, c.sendLine)
}

func (c *client) quit(*gocui.Gui, *gocui.View) error {
	fmt.Fprintln(c.conn, "/quit")
	return gocui.ErrQuit
}

// sendLine ships the input buffer to the server and clears it.
func (c *client) sendLine(g *gocui.Gui, v *gocui.View) error {
	line := strings.TrimSpace(v.Buffer())
	v.Clear()
	if err := v.SetCursor(0, 0); err != nil {
		return err
	}
	if line == "" {
		return nil
	}

	if _, err := fmt.Fprintf(c.conn, "%s\n", line); err != nil {
		c.appendMessage(fmt.Sprintf("[error] send failed: %v", err))
		return nil
	}
	if line == "/quit" {
		return gocui.ErrQuit
	}
	return nil
}

// readLoop copies server lines into the messages pane until the stream closes.
func (c *client) readLoop() {
	scanner := bufio.NewScanner(c.conn)
	for scanner.Scan() {
		c.appendMessage(scanner.Text())
	}
	c.appendMessage("[error] disconnected from server")
}

func (c *client) appendMessage(line string) {
	c.gui.Update(func(g *gocui.Gui) error {
		v, err := g.View(viewMessages)
		if err != nil {
			return err
		}
		fmt.Fprintln(v, line)
		return nil
	})
}
