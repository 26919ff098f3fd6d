package node

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/villasnode/villasnode-go/internal/c37118"
	"github.com/villasnode/villasnode-go/internal/sample"
)

// C37118Type wraps the internal/c37118 codec over a TCP connection,
// grounded on include/villas/nodes/c37_118.hpp and
// lib/nodes/c37_118/parser.cpp: connect as a PMU client, exchange a Config2
// negotiated out of band (here, from static node config) and then stream
// Data frames.
type C37118Type struct{}

func init() { Register(&C37118Type{}) }

func (*C37118Type) Name() string { return "c37_118" }

type c37118State struct {
	mu sync.Mutex

	addr   string
	idcode uint16
	cfg    *c37118.Config2

	conn   net.Conn
	reader *bufio.Reader
	seq    uint64
}

func (*C37118Type) Instantiate(name string, config map[string]interface{}) (*Node, error) {
	addr, _ := config["address"].(string)
	if addr == "" {
		return nil, fmt.Errorf("c37_118 node %s: address required", name)
	}
	idcode := uint16(1)
	if v, ok := config["idcode"].(int); ok {
		idcode = uint16(v)
	}

	st := &c37118State{
		addr:   addr,
		idcode: idcode,
		cfg: &c37118.Config2{
			TimeBase: 1000000,
			DataRate: 50,
			PMUs: []c37118.PmuConfig1{{
				Station: name,
				IDCode:  idcode,
				Format:  c37118.DataFormat(0x1),
				Phasors: []c37118.ChannelInfo{{Name: "PH1", Unit: 1}},
			}},
		},
	}
	return NewNode(name, &C37118Type{}, st), nil
}

func (*C37118Type) Start(ctx context.Context, n *Node) error {
	st := n.State.(*c37118State)
	st.mu.Lock()
	defer st.mu.Unlock()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", st.addr)
	if err != nil {
		return fmt.Errorf("c37_118 node %s: dial: %w", n.Name(), err)
	}
	st.conn = conn
	st.reader = bufio.NewReader(conn)
	return nil
}

func (*C37118Type) Stop(n *Node) error {
	st := n.State.(*c37118State)
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.conn != nil {
		st.conn.Close()
		st.conn = nil
	}
	return nil
}

// Read blocks for the next Data frame on the wire and unpacks its phasor
// values into one Sample's value vector.
func (*C37118Type) Read(ctx context.Context, n *Node, out []*sample.Sample, count int) (int, error) {
	st := n.State.(*c37118State)
	st.mu.Lock()
	conn := st.conn
	reader := st.reader
	cfg := st.cfg
	st.mu.Unlock()

	if conn == nil {
		return 0, fmt.Errorf("c37_118 node %s: not connected", n.Name())
	}

	read := 0
	for read < count && read < len(out) {
		if deadline, ok := ctx.Deadline(); ok {
			conn.SetReadDeadline(deadline)
		}

		header := make([]byte, 4)
		if _, err := io.ReadFull(reader, header); err != nil {
			return read, fmt.Errorf("c37_118 node %s: read header: %w", n.Name(), err)
		}
		framesize := binary.BigEndian.Uint16(header[2:4])
		if framesize < 4 {
			return read, fmt.Errorf("c37_118 node %s: invalid framesize", n.Name())
		}
		rest := make([]byte, framesize-4)
		if _, err := io.ReadFull(reader, rest); err != nil {
			return read, fmt.Errorf("c37_118 node %s: read body: %w", n.Name(), err)
		}

		wire := append(header, rest...)
		frame, err := c37118.Decode(wire, cfg)
		if err != nil {
			return read, fmt.Errorf("c37_118 node %s: decode: %w", n.Name(), err)
		}
		data, ok := frame.Message.(c37118.Data)
		if !ok || len(data.PMUs) == 0 {
			continue
		}

		s := out[read]
		pmu := data.PMUs[0]
		s.Length = 0
		for _, ph := range pmu.Phasors {
			if s.Length >= s.Capacity() {
				break
			}
			s.Values[s.Length] = sample.FloatValue(real(ph))
			s.Length++
		}
		if s.Length < s.Capacity() {
			s.Values[s.Length] = sample.FloatValue(pmu.Freq)
			s.Length++
		}
		s.Sequence = st.nextSeq()
		s.OriginTS = time.Now()
		read++
	}
	return read, nil
}

func (st *c37118State) nextSeq() uint64 {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.seq++
	return st.seq
}

