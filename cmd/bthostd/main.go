package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/btforge/bthost"
	"github.com/btforge/bthost/hci"
	"github.com/btforge/bthost/host"
)

func main() {
	app := cli.NewApp()

	app.Name = "bthostd"
	app.Usage = "Bluetooth classic host daemon"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.IntFlag{Name: "device, i", Value: -1, Usage: "raw HCI device id (-1 picks the first)"},
		cli.StringFlag{Name: "uart", Usage: "H4 framed UART device path"},
		cli.StringFlag{Name: "tcp", Usage: "H4 framed TCP address"},
		cli.StringFlag{Name: "name, n", Value: "bthostd", Usage: "local friendly name"},
		cli.DurationFlag{Name: "discoverable, d", Value: 2 * time.Minute, Usage: "discoverable timeout, 0 stays discoverable"},
		cli.StringFlag{Name: "bonds", Value: "", Usage: "bond store path"},
		cli.IntFlag{Name: "echo", Value: 0, Usage: "serve an RFCOMM echo listener on this channel (0 disables)"},
		cli.BoolFlag{Name: "verbose, v", Usage: "trace logging"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	if c.Bool("verbose") {
		bthost.SetLogLevelMax()
	}

	opts := []bthost.Option{
		bthost.OptLocalName(c.String("name")),
	}
	switch {
	case c.String("uart") != "":
		opts = append(opts, bthost.OptTransportH4Uart(c.String("uart")))
	case c.String("tcp") != "":
		opts = append(opts, bthost.OptTransportH4Socket(c.String("tcp"), 5*time.Second))
	default:
		opts = append(opts, bthost.OptTransportHCISocket(c.Int("device")))
	}
	if p := c.String("bonds"); p != "" {
		opts = append(opts, bthost.OptBondStore(p))
	}

	h, err := host.New(opts...)
	if err != nil {
		return err
	}
	defer h.Close()

	sub := h.Subscribe()
	go printEvents(sub)

	ready := h.Subscribe()
	if err := h.Enable(); err != nil {
		return err
	}
	if err := waitPowerOn(ready); err != nil {
		return err
	}
	ready.Unsubscribe()
	fmt.Printf("adapter %v up as %q\n", h.Address(), h.Name())

	if err := h.SetDiscoverableTimeout(c.Duration("discoverable")); err != nil {
		return err
	}
	if err := h.SetScanMode(bthost.ScanModeConnectableDiscoverable); err != nil {
		return err
	}

	if port := c.Int("echo"); port != 0 {
		l, err := h.ListenInsecureRFCOMM(port)
		if err != nil {
			return err
		}
		fmt.Printf("rfcomm echo on channel %d\n", l.Port())
		go serveEcho(l)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	return nil
}

func waitPowerOn(sub *host.Subscription) error {
	for {
		select {
		case e := <-sub.C:
			p, ok := e.(bthost.PowerStateChanged)
			if !ok {
				continue
			}
			switch p.State {
			case bthost.PowerOn:
				return nil
			case bthost.PowerOff:
				return errors.New("adapter bring-up failed")
			}
		case <-time.After(30 * time.Second):
			return errors.New("adapter bring-up timed out")
		}
	}
}

func printEvents(sub *host.Subscription) {
	for e := range sub.C {
		switch e := e.(type) {
		case bthost.PowerStateChanged:
			fmt.Printf("power: %v -> %v\n", e.Prev, e.State)
		case bthost.ScanModeChanged:
			fmt.Printf("scan mode: %v\n", e.Mode)
		case bthost.DeviceDiscovered:
			fmt.Printf("found %v class=%06x rssi=%d\n", e.Addr, e.Class, e.RSSI)
		case bthost.DiscoveryStateChanged:
			fmt.Printf("discovering: %v\n", e.Discovering)
		case bthost.BondStateChanged:
			fmt.Printf("bond %v: %v -> %v\n", e.Addr, e.Prev, e.State)
		case bthost.ConnectionStateChanged:
			fmt.Printf("conn %v: %v -> %v\n", e.Addr, e.Prev, e.State)
		case bthost.PairingRequest:
			fmt.Printf("pairing %v: %v passkey=%06d\n", e.Addr, e.Variant, e.Passkey)
		default:
			fmt.Printf("event: %#v\n", e)
		}
	}
}

func serveEcho(l *hci.Channel) {
	for {
		ch, err := l.Accept(0)
		if err != nil {
			if errors.Cause(err) == bthost.ErrTimeout {
				continue
			}
			fmt.Printf("accept: %v\n", err)
			return
		}
		fmt.Printf("echo client %v\n", ch.Peer())
		go func() {
			defer ch.Close()
			if _, err := io.Copy(ch, ch); err != nil {
				fmt.Printf("echo %v: %v\n", ch.Peer(), err)
			}
		}()
	}
}
