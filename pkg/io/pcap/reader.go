// Package pcap aggregates packet captures into per-source flow records.
package pcap

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/hed1ad/densityguard/pkg/dataset"
	pkgio "github.com/hed1ad/densityguard/pkg/io"
)

// DefaultWindow is the aggregation window used when none is configured.
const DefaultWindow = time.Minute

const pcapngMagic = 0x0A0D0D0A

// Reader reads a capture file and emits one point per (window, source IP).
//
// Categorical attributes are [window start in RFC3339, source IP]; numeric
// attributes are [packet count, distinct destination ports].
type Reader struct {
	src    io.ReadCloser
	window time.Duration
}

// Option configures a pcap reader.
type Option func(*Reader)

// WithWindow sets the aggregation window.
func WithWindow(d time.Duration) Option {
	return func(r *Reader) {
		r.window = d
	}
}

// NewFileReader opens a pcap or pcapng file, decompressing by extension.
func NewFileReader(filename string, opts ...Option) (*Reader, error) {
	src, err := pkgio.Open(filename)
	if err != nil {
		return nil, err
	}
	r, err := FromReader(src, opts...)
	if err != nil {
		src.Close()
		return nil, err
	}
	return r, nil
}

// FromReader reads a capture from src. Close closes src.
func FromReader(src io.ReadCloser, opts ...Option) (*Reader, error) {
	r := &Reader{
		src:    src,
		window: DefaultWindow,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.window <= 0 {
		return nil, fmt.Errorf("pcap window must be positive, got %s", r.window)
	}
	return r, nil
}

type packetSource interface {
	gopacket.PacketDataSource
	LinkType() layers.LinkType
}

func (r *Reader) open() (packetSource, error) {
	br := bufio.NewReader(r.src)
	magic, err := br.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("read capture header: %w", err)
	}
	if binary.LittleEndian.Uint32(magic) == pcapngMagic {
		return pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
	}
	return pcapgo.NewReader(br)
}

type flowAggregate struct {
	src     string
	packets int
	ports   *roaring.Bitmap
}

type windowBucket struct {
	start time.Time
	flows []*flowAggregate
	bySrc map[string]*flowAggregate
}

// Read aggregates every packet and returns the flow records ordered by window,
// then by first-seen source within the window.
func (r *Reader) Read() (*dataset.Dataset, error) {
	ps, err := r.open()
	if err != nil {
		return nil, err
	}

	source := gopacket.NewPacketSource(ps, ps.LinkType())
	source.DecodeOptions = gopacket.DecodeOptions{Lazy: true}

	buckets := make(map[int64]*windowBucket)
	for {
		packet, err := source.NextPacket()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read packet: %w", err)
		}

		src, port, hasPort, ok := Extract(packet)
		if !ok {
			continue
		}

		start := packet.Metadata().Timestamp.UTC().Truncate(r.window)
		b, found := buckets[start.UnixNano()]
		if !found {
			b = &windowBucket{start: start, bySrc: make(map[string]*flowAggregate)}
			buckets[start.UnixNano()] = b
		}
		f, found := b.bySrc[src]
		if !found {
			f = &flowAggregate{src: src, ports: roaring.New()}
			b.bySrc[src] = f
			b.flows = append(b.flows, f)
		}
		f.packets++
		if hasPort {
			f.ports.Add(uint32(port))
		}
	}

	ordered := make([]*windowBucket, 0, len(buckets))
	for _, b := range buckets {
		ordered = append(ordered, b)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].start.Before(ordered[j].start)
	})

	ds := dataset.New(len(ordered))
	for _, b := range ordered {
		ts := b.start.Format(time.RFC3339)
		for _, f := range b.flows {
			ds.Add(dataset.Point{
				Categorical: []string{ts, f.src},
				Numeric:     []int{f.packets, int(f.ports.GetCardinality())},
				Key:         f.src,
				Timestamp:   ts,
			})
		}
	}
	return ds, nil
}

// Close releases resources.
func (r *Reader) Close() error {
	if r.src != nil {
		return r.src.Close()
	}
	return nil
}

// Extract returns the source IP of an IP packet and its TCP or UDP
// destination port. ok is false for packets without an IP layer.
func Extract(packet gopacket.Packet) (src string, dstPort uint16, hasPort, ok bool) {
	switch ip := packet.NetworkLayer().(type) {
	case *layers.IPv4:
		src = ip.SrcIP.String()
	case *layers.IPv6:
		src = ip.SrcIP.String()
	default:
		return "", 0, false, false
	}

	switch l := packet.TransportLayer().(type) {
	case *layers.TCP:
		return src, uint16(l.DstPort), true, true
	case *layers.UDP:
		return src, uint16(l.DstPort), true, true
	}
	return src, 0, false, true
}
