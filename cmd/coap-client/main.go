// Command coap-client sends one confirmable GET to a CoAP peer and waits
// for the response, driving the engine's tick loop at a fixed period
// (spec.md section 9 "Demo client").
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"net"
	"os"
	"strings"
	"time"

	"github.com/embeddedadventures/coap"
	"github.com/embeddedadventures/coap/clock"
	"github.com/embeddedadventures/coap/transport"
)

func main() {
	var (
		host      = flag.String("host", "127.0.0.1", "destination host")
		port      = flag.Int("port", 5683, "destination UDP port")
		localPort = flag.Int("local-port", 0, "local UDP port (0 picks a free one)")
		path      = flag.String("path", "", "URI-Path, e.g. sensors/temperature")
		confirm   = flag.Bool("con", true, "send as confirmable")
		tickEvery = flag.Duration("tick", 50*time.Millisecond, "tick period")
		debug     = flag.Bool("debug", false, "trace sends and receives")
	)
	flag.Parse()

	coap.Debug(*debug)

	udp := transport.New()
	sys := clock.New()

	done := make(chan struct{})
	handlers := coap.Handlers{
		OnTXSuccess: func(b []byte) {
			var p coap.Packet
			if err := p.CopyFrom(b); err == nil && p.Parse() == nil {
				fmt.Printf("response %s: %s\n", p.Code(), p.Payload())
			}
			close(done)
		},
		OnTXFailure: func(b []byte) {
			fmt.Fprintln(os.Stderr, "request failed: no response")
			close(done)
		},
	}

	engine := coap.NewEngine(coap.Config{Transport: udp, Clock: sys, Handlers: handlers})
	if err := engine.Bind(*localPort); err != nil {
		fmt.Fprintln(os.Stderr, "bind:", err)
		os.Exit(1)
	}
	defer udp.Close()

	destIP := net.ParseIP(*host)
	if destIP == nil {
		addrs, err := net.LookupIP(*host)
		if err != nil || len(addrs) == 0 {
			fmt.Fprintln(os.Stderr, "resolve host:", err)
			os.Exit(1)
		}
		destIP = addrs[0]
	}
	engine.SetDestination(destIP, *port)

	typ := coap.NonConfirmable
	if *confirm {
		typ = coap.Confirmable
	}

	var req coap.Packet
	req.Begin()
	messageID := uint16(rand.Intn(1 << 16))
	if err := req.AddHeader(typ, coap.GET, messageID); err != nil {
		fmt.Fprintln(os.Stderr, "build header:", err)
		os.Exit(1)
	}
	if err := req.AddTokens(coap.NewToken()); err != nil {
		fmt.Fprintln(os.Stderr, "build token:", err)
		os.Exit(1)
	}
	for _, segment := range strings.Split(strings.Trim(*path, "/"), "/") {
		if segment == "" {
			continue
		}
		if err := req.AddOption(coap.URIPath, []byte(segment)); err != nil {
			fmt.Fprintln(os.Stderr, "build option:", err)
			os.Exit(1)
		}
	}
	req.Finish()

	if _, err := engine.EnqueueTX(req.Bytes()); err != nil {
		fmt.Fprintln(os.Stderr, "enqueue:", err)
		os.Exit(1)
	}

	ticker := time.NewTicker(*tickEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			engine.TickTX()
			engine.TickRX()
		case <-done:
			return
		}
	}
}
