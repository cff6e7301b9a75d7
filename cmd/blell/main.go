// blell is a diagnostic tool for the link layer engine: it advertises,
// scans or connects through a UART radio front-end, and decodes or
// generates protocol vectors offline.
package main

import (
	"encoding/hex"
	"fmt"
	"math/rand"
	"os"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/corvuslink/ble"
	"github.com/corvuslink/ble/l2cap"
	"github.com/corvuslink/ble/ll"
	"github.com/corvuslink/ble/llq"
	"github.com/corvuslink/ble/radio/uartradio"
	"github.com/corvuslink/ble/wire"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func main() {
	app := cli.NewApp()
	app.Name = "blell"
	app.Usage = "BLE link layer diagnostics"

	app.Flags = []cli.Flag{
		cli.BoolFlag{Name: "debug", Usage: "enable trace logging"},
	}
	app.Before = func(c *cli.Context) error {
		if c.GlobalBool("debug") {
			ble.SetLogLevelMax()
		}
		return nil
	}

	portFlags := []cli.Flag{
		cli.StringFlag{Name: "port", Usage: "serial port of the radio front-end", Value: "/dev/ttyACM0"},
		cli.UintFlag{Name: "baud", Usage: "serial baud rate", Value: 1000000},
		cli.StringFlag{Name: "addr", Usage: "local device address", Value: "c0:11:22:33:44:55"},
	}

	app.Commands = []cli.Command{
		{
			Name:  "advertise",
			Usage: "advertise as a connectable peripheral",
			Flags: append([]cli.Flag{
				cli.StringFlag{Name: "name", Usage: "advertised device name", Value: "blell"},
				cli.DurationFlag{Name: "interval", Usage: "advertising interval", Value: 100 * time.Millisecond},
			}, portFlags...),
			Action: cmdAdvertise,
		},
		{
			Name:  "scan",
			Usage: "report observed advertisements",
			Flags: append([]cli.Flag{
				cli.BoolFlag{Name: "json", Usage: "print reports as JSON"},
			}, portFlags...),
			Action: cmdScan,
		},
		{
			Name:  "connect",
			Usage: "initiate a connection to a peer",
			Flags: append([]cli.Flag{
				cli.StringFlag{Name: "peer", Usage: "peer device address", Required: true},
				cli.DurationFlag{Name: "interval", Usage: "connection interval", Value: 50 * time.Millisecond},
				cli.DurationFlag{Name: "timeout", Usage: "supervision timeout", Value: 2 * time.Second},
			}, portFlags...),
			Action: cmdConnect,
		},
		{
			Name:  "decode",
			Usage: "decode a hex encoded PDU (header first)",
			Flags: []cli.Flag{
				cli.BoolFlag{Name: "data", Usage: "decode as data channel PDU instead of advertising"},
			},
			Action: cmdDecode,
		},
		{
			Name:   "vectors",
			Usage:  "print CRC, whitening and hop sequence vectors as JSON",
			Action: cmdVectors,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openRadio(c *cli.Context, opts ...ll.Option) (*uartradio.Radio, *ll.LinkLayer, error) {
	addr, err := ble.ParseDeviceAddress(c.String("addr"), ble.AddressRandom)
	if err != nil {
		return nil, nil, err
	}
	radio, err := uartradio.Open(c.String("port"), c.Uint("baud"))
	if err != nil {
		return nil, nil, err
	}
	link, err := ll.New(addr, opts...)
	if err != nil {
		radio.Close()
		return nil, nil, err
	}
	return radio, link, nil
}

type monitor struct{}

func (monitor) Connected(peer ble.DeviceAddress) {
	fmt.Printf("connected to %s\n", peer)
}

func (monitor) Disconnected(peer ble.DeviceAddress, reason ble.DisconnectReason) {
	fmt.Printf("disconnected from %s: %s\n", peer, reason)
}

func cmdAdvertise(c *cli.Context) error {
	radio, link, err := openRadio(c, ll.OptMonitor(monitor{}))
	if err != nil {
		return err
	}
	defer radio.Close()

	var ad ll.AdvData
	if err := ad.AppendFlags(ll.FlagGeneralDiscoverable | ll.FlagBREDRNotSupported); err != nil {
		return err
	}
	if err := ad.AppendCompleteLocalName(c.String("name")); err != nil {
		return err
	}

	txq := llq.New()
	rxq := llq.New()
	txp, txc := txq.Split()
	rxp, rxc := rxq.Split()

	cmd, err := link.StartAdvertising(time.Now(), c.Duration("interval"), ad.Bytes(), ad.Bytes(), txc, rxp)
	if err != nil {
		return err
	}

	mux, err := l2cap.New(txp, rxc)
	if err != nil {
		return err
	}
	mux.Handle(l2cap.CIDAtt, func(sdu []byte) {
		fmt.Printf("ATT <- [% x]\n", sdu)
	})

	fmt.Printf("advertising as %s, ^C to stop\n", link.Address())
	return radio.Serve(link, cmd, func() { mux.Poll() })
}

func cmdScan(c *cli.Context) error {
	radio, link, err := openRadio(c)
	if err != nil {
		return err
	}
	defer radio.Close()

	asJSON := c.Bool("json")
	observer := func(r ll.ScanReport) {
		if asJSON {
			type report struct {
				Addr string `json:"addr"`
				Type string `json:"type"`
				Name string `json:"name,omitempty"`
				Data string `json:"data"`
			}
			name, _ := ll.LocalName(r.Data)
			out, _ := json.Marshal(report{
				Addr: r.Addr.String(),
				Type: r.Type.String(),
				Name: name,
				Data: hex.EncodeToString(r.Data),
			})
			fmt.Println(string(out))
			return
		}
		if name, ok := ll.LocalName(r.Data); ok {
			fmt.Printf("%s %s %q\n", r.Addr, r.Type, name)
		} else {
			fmt.Printf("%s %s [% x]\n", r.Addr, r.Type, r.Data)
		}
	}

	cmd, err := link.StartScanning(time.Now(), observer)
	if err != nil {
		return err
	}
	fmt.Println("scanning, ^C to stop")
	return radio.Serve(link, cmd, nil)
}

func cmdConnect(c *cli.Context) error {
	radio, link, err := openRadio(c, ll.OptMonitor(monitor{}))
	if err != nil {
		return err
	}
	defer radio.Close()

	peer, err := ble.ParseDeviceAddress(c.String("peer"), ble.AddressRandom)
	if err != nil {
		return err
	}

	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	params := ll.ConnParams{
		AccessAddress: rnd.Uint32() | 0x01000000, // stay off the advertising AA
		CRCInit:       rnd.Uint32() & 0x00FFFFFF,
		Interval:      uint16(c.Duration("interval") / (1250 * time.Microsecond)),
		Timeout:       uint16(c.Duration("timeout") / (10 * time.Millisecond)),
		Map:           ll.AllChannels(),
		Hop:           uint8(5 + rnd.Intn(12)),
	}

	txq := llq.New()
	rxq := llq.New()
	txp, txc := txq.Split()
	rxp, rxc := rxq.Split()

	cmd, err := link.StartInitiating(time.Now(), peer, params, txc, rxp)
	if err != nil {
		return err
	}

	mux, err := l2cap.New(txp, rxc)
	if err != nil {
		return err
	}
	mux.Handle(l2cap.CIDAtt, func(sdu []byte) {
		fmt.Printf("ATT <- [% x]\n", sdu)
	})

	fmt.Printf("connecting to %s, ^C to stop\n", peer)
	return radio.Serve(link, cmd, func() { mux.Poll() })
}

func cmdDecode(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("decode needs one hex argument")
	}
	raw, err := hex.DecodeString(c.Args().First())
	if err != nil {
		return errors.Wrap(err, "bad hex")
	}

	r := wire.NewReader(raw)
	var out interface{}

	if c.Bool("data") {
		header, err := ll.ParseDataHeader(&r)
		if err != nil {
			return err
		}
		v := map[string]interface{}{
			"llid":   header.LLID().String(),
			"nesn":   header.NESN(),
			"sn":     header.SN(),
			"md":     header.MD(),
			"length": header.PayloadLength(),
		}
		if header.LLID() == ll.LLIDControl {
			if pdu, err := ll.ParseControlPDU(&r); err == nil {
				v["opcode"] = pdu.Opcode.String()
			}
		}
		out = v
	} else {
		header, err := ll.ParseAdvHeader(&r)
		if err != nil {
			return err
		}
		v := map[string]interface{}{
			"type":   header.Type().String(),
			"txadd":  header.TxAdd(),
			"rxadd":  header.RxAdd(),
			"length": header.PayloadLength(),
		}
		if header.Type() == ll.ConnectReq {
			if cr, err := ll.ParseConnectRequest(header, &r); err == nil {
				v["init"] = cr.InitAddr.String()
				v["adv"] = cr.AdvAddr.String()
				v["aa"] = fmt.Sprintf("%#08x", cr.AccessAddress)
				v["interval"] = cr.IntervalDuration().String()
				v["timeout"] = cr.TimeoutDuration().String()
				v["hop"] = cr.Hop
			}
		} else if r.Remaining() >= 6 {
			var b [6]byte
			copy(b[:], r.Rest())
			kind := ble.AddressPublic
			if header.TxAdd() {
				kind = ble.AddressRandom
			}
			v["addr"] = ble.NewDeviceAddress(b, kind).String()
		}
		out = v
	}

	enc, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(enc))
	return nil
}

func cmdVectors(c *cli.Context) error {
	type vectors struct {
		CRCEmptyAdvInd string  `json:"crc_empty_adv_ind"`
		WhitenCh37     string  `json:"whitening_ch37_zeros"`
		HopAll37Hop7   []uint8 `json:"hop_all37_hop7"`
	}

	var v vectors

	// CRC of a minimal ADV_IND header with a zero address.
	pdu := make([]byte, 8)
	pdu[1] = 6
	v.CRCEmptyAdvInd = fmt.Sprintf("%06x", ll.CRC24(pdu, ll.CRCPreset))

	// First whitening bytes of channel 37 against an all-zero buffer.
	zeros := make([]byte, 8)
	ll.Whiten(37, zeros)
	v.WhitenCh37 = hex.EncodeToString(zeros)

	hopper, err := ll.NewHopper(7, ll.AllChannels())
	if err != nil {
		return err
	}
	for ev := 0; ev < 16; ev++ {
		v.HopAll37Hop7 = append(v.HopAll37Hop7, hopper.Next(uint16(ev)).Index())
	}

	enc, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(enc))
	return nil
}
