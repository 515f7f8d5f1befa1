// Command widanalyze decodes WID traffic from Saleae logic analyzer captures
// of the SPI link between a host and its WiFi co-processor.
package main

import (
	"bytes"
	"cmp"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/soypat/saleae"
	"github.com/soypat/saleae/analyzers"

	"github.com/soypat/winc/wid"
)

type direction uint8

const (
	dirHost     direction = iota // Host to firmware, MOSI.
	dirFirmware                  // Firmware to host, MISO.
)

func (d direction) String() string {
	if d == dirHost {
		return "host>"
	}
	return "<fw  "
}

// Decoder turns SPI transactions into WID messages.
type Decoder struct {
	// Collapse merges consecutive identical messages into one line.
	Collapse     bool
	OmitHost     bool
	OmitFirmware bool
	// Raw appends the message bytes to each line.
	Raw bool
}

// capture is the data clocked on one line during a single chip select
// assertion.
type capture struct {
	Dir   direction
	Start float64
	Data  []byte
}

type entry struct {
	Num   int
	Dir   direction
	Start float64
	Msg   []byte
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "widanalyze - Decode WID messages from binary Saleae digital captures of a SPI link.\n\tUsage:\n")
		flag.PrintDefaults()
	}
	mosi := flag.String("f-mosi", "digital_1.bin", "Input filename: SPI MOSI data (host to firmware).")
	miso := flag.String("f-miso", "", "Input filename: SPI MISO data (firmware to host). Empty skips responses.")
	enable := flag.String("f-cs", "digital_0.bin", "Input filename: SPI CS/SS data.")
	clk := flag.String("f-clk", "digital_2.bin", "Input filename: SPI CLK data.")
	csvFile := flag.String("csv", "", "Input filename: CSV export with time,CS,MOSI,CLK[,MISO] columns. Replaces the binary inputs.")
	output := flag.String("o", "", "Output filename. Defaults to standard output.")
	var dec Decoder
	flag.BoolVar(&dec.Collapse, "collapse", true, "Merge consecutive identical messages.")
	flag.BoolVar(&dec.OmitHost, "omit-host", false, "Omit messages sent by the host.")
	flag.BoolVar(&dec.OmitFirmware, "omit-fw", false, "Omit messages sent by the firmware.")
	flag.BoolVar(&dec.Raw, "raw", false, "Print raw message bytes.")
	verbose := flag.Bool("v", false, "Log skipped bytes.")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	if dec.OmitHost && dec.OmitFirmware {
		log.Fatal("cannot omit both host and firmware messages")
	}

	start := time.Now()
	var caps []capture
	var err error
	if *csvFile != "" {
		caps, err = readCSVFile(*csvFile)
	} else {
		caps, err = readCaptures(*clk, *enable, *mosi, *miso)
	}
	if err != nil {
		log.Fatal(err)
	}
	var w io.Writer = os.Stdout
	if *output != "" {
		fp, err := os.Create(*output)
		if err != nil {
			log.Fatal(err)
		}
		defer fp.Close()
		w = fp
	}
	entries := dec.messages(caps)
	if err := dec.write(w, entries); err != nil {
		log.Fatal(err)
	}
	slog.Info("finished", slog.Int("transactions", len(caps)), slog.Int("messages", len(entries)), slog.Duration("elapsed", time.Since(start)))
}

// readCaptures runs the SPI analyzer over the capture files. MISO is decoded
// by handing it to the analyzer in place of MOSI.
func readCaptures(fclk, fenable, fmosi, fmiso string) ([]capture, error) {
	clk, err := opendigital(fclk)
	if err != nil {
		return nil, err
	}
	enable, err := opendigital(fenable)
	if err != nil {
		return nil, err
	}
	var caps []capture
	lines := []struct {
		file string
		dir  direction
	}{{fmosi, dirHost}, {fmiso, dirFirmware}}
	for _, line := range lines {
		if line.file == "" {
			continue
		}
		data, err := opendigital(line.file)
		if err != nil {
			return nil, err
		}
		spi := analyzers.SPI{}
		txs, _ := spi.Scan(clk, enable, data, data)
		for _, tx := range txs {
			caps = append(caps, capture{Dir: line.dir, Start: tx.StartTime(), Data: tx.SDO})
		}
	}
	slices.SortStableFunc(caps, func(a, b capture) int { return cmp.Compare(a.Start, b.Start) })
	return caps, nil
}

func readCSVFile(filename string) ([]capture, error) {
	fp, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer fp.Close()
	return parseCSV(fp)
}

// parseCSV decodes a digital CSV export sampled on every edge. Bits are
// shifted in MSB first on the rising clock edge while CS is low.
func parseCSV(r io.Reader) ([]capture, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true
	if _, err := cr.Read(); err != nil { // Header.
		return nil, err
	}
	type shifter struct {
		dir  direction
		data []byte
		cur  byte
		bits int
	}
	lines := []*shifter{{dir: dirHost}, {dir: dirFirmware}}
	var caps []capture
	var start float64
	prevCS, prevCLK := 1, 0
	for row := 2; ; row++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		}
		if len(rec) < 4 {
			return nil, fmt.Errorf("row %d: want at least 4 columns, got %d", row, len(rec))
		}
		t, err := strconv.ParseFloat(strings.TrimSpace(rec[0]), 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}
		cs, _ := strconv.Atoi(strings.TrimSpace(rec[1]))
		clk, _ := strconv.Atoi(strings.TrimSpace(rec[3]))
		levels := [2]int{}
		levels[0], _ = strconv.Atoi(strings.TrimSpace(rec[2]))
		if len(rec) > 4 {
			levels[1], _ = strconv.Atoi(strings.TrimSpace(rec[4]))
		}

		if prevCS == 1 && cs == 0 {
			start = t
			for _, l := range lines {
				l.data, l.cur, l.bits = nil, 0, 0
			}
		}
		if cs == 0 && prevCLK == 0 && clk == 1 {
			for i, l := range lines {
				l.cur = l.cur<<1 | byte(levels[i]&1)
				l.bits++
				if l.bits == 8 {
					l.data = append(l.data, l.cur)
					l.cur, l.bits = 0, 0
				}
			}
		}
		if prevCS == 0 && cs == 1 {
			for _, l := range lines {
				if len(l.data) > 0 {
					caps = append(caps, capture{Dir: l.dir, Start: start, Data: l.data})
				}
			}
		}
		prevCS, prevCLK = cs, clk
	}
	return caps, nil
}

func opendigital(filename string) (*saleae.DigitalFile, error) {
	fp, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer fp.Close()
	return saleae.ReadDigitalFile(fp)
}

// splitMessages extracts the WID messages carried in one transaction. Bytes
// that do not start a well formed header, such as bus filler, are skipped.
func splitMessages(b []byte) (msgs [][]byte, skipped int) {
	for len(b) >= wid.HeaderLen {
		hdr := wid.DecodeHeader(b)
		if b[1] == 0 && hdr.Validate(len(b)) == nil {
			msgs = append(msgs, b[:hdr.Length])
			b = b[hdr.Length:]
			continue
		}
		b = b[1:]
		skipped++
	}
	return msgs, skipped + len(b)
}

func (dec *Decoder) messages(caps []capture) (entries []entry) {
	for _, c := range caps {
		if (dec.OmitHost && c.Dir == dirHost) || (dec.OmitFirmware && c.Dir == dirFirmware) {
			continue
		}
		msgs, skipped := splitMessages(c.Data)
		if skipped > 0 && len(msgs) > 0 {
			slog.Debug("skipped bytes", slog.String("dir", c.Dir.String()), slog.Float64("t", c.Start), slog.Int("n", skipped))
		}
		for _, msg := range msgs {
			if n := len(entries); dec.Collapse && n > 0 &&
				entries[n-1].Dir == c.Dir && bytes.Equal(entries[n-1].Msg, msg) {
				entries[n-1].Num++
				continue
			}
			entries = append(entries, entry{Num: 1, Dir: c.Dir, Start: c.Start, Msg: msg})
		}
	}
	return entries
}

func (dec *Decoder) write(w io.Writer, entries []entry) error {
	var sb strings.Builder
	for _, e := range entries {
		sb.Reset()
		fmt.Fprintf(&sb, "t=%.6f %s ×%-2d %c len=%-4d", e.Start, e.Dir, e.Num, e.Msg[0], len(e.Msg))
		r, err := wid.NewReader(e.Msg)
		if err != nil {
			return err
		}
		for r.Next() {
			sb.WriteByte(' ')
			sb.WriteString(r.Record().String())
		}
		if err := r.Err(); err != nil {
			fmt.Fprintf(&sb, " !%v", err)
		}
		if dec.Raw {
			fmt.Fprintf(&sb, " raw=%x", e.Msg)
		}
		sb.WriteByte('\n')
		if _, err := io.WriteString(w, sb.String()); err != nil {
			return err
		}
	}
	return nil
}
