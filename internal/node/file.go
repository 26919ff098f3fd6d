package node

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/villasnode/villasnode-go/internal/sample"
)

// FileType is the replay/record node type, grounded on lib/nodes/file.c: an
// "in" path is read sequentially and rewound at EOF (unless split, which
// this port does not implement), an "out" path is appended to line by line.
// Each line is "<sequence> <value> [<value> ...]", one value per signal:
// int and float values are written as numbers, bool as true/false, complex
// as (re+imi). Read parses every value column as a float and skips a line
// it cannot parse, so bool and complex columns do not replay.
type FileType struct{}

func init() { Register(&FileType{}) }

func (*FileType) Name() string { return "file" }

type fileState struct {
	mu sync.Mutex

	inPath  string
	outPath string

	in     *os.File
	reader *bufio.Reader
	out    *os.File

	reversed bool
}

func (*FileType) Instantiate(name string, config map[string]interface{}) (*Node, error) {
	st := &fileState{}
	if in, ok := config["in"].(map[string]interface{}); ok {
		path, _ := in["path"].(string)
		if path == "" {
			return nil, fmt.Errorf("file node %s: in.path required", name)
		}
		st.inPath = path
	}
	if out, ok := config["out"].(map[string]interface{}); ok {
		path, _ := out["path"].(string)
		if path == "" {
			return nil, fmt.Errorf("file node %s: out.path required", name)
		}
		st.outPath = path
	}
	if st.inPath == "" && st.outPath == "" {
		return nil, fmt.Errorf("file node %s: at least one of in/out required", name)
	}
	return NewNode(name, &FileType{}, st), nil
}

func (*FileType) Start(_ context.Context, n *Node) error {
	st := n.State.(*fileState)
	st.mu.Lock()
	defer st.mu.Unlock()

	path := st.inPath
	if st.reversed {
		path = st.outPath
	}
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open input file: %w", err)
		}
		st.in = f
		st.reader = bufio.NewReader(f)
	}

	path = st.outPath
	if st.reversed {
		path = st.inPath
	}
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open output file: %w", err)
		}
		st.out = f
	}
	return nil
}

func (*FileType) Stop(n *Node) error {
	st := n.State.(*fileState)
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.in != nil {
		st.in.Close()
		st.in = nil
		st.reader = nil
	}
	if st.out != nil {
		st.out.Close()
		st.out = nil
	}
	return nil
}

// Reverse swaps the read/write direction, matching file_reverse.
func (*FileType) Reverse(n *Node) error {
	st := n.State.(*fileState)
	st.mu.Lock()
	st.inPath, st.outPath = st.outPath, st.inPath
	st.reversed = !st.reversed
	st.mu.Unlock()
	return nil
}

// Read scans one sample per line, rewinding at EOF rather than exiting
// (matching file_read's no-split path).
func (*FileType) Read(_ context.Context, n *Node, out []*sample.Sample, count int) (int, error) {
	st := n.State.(*fileState)
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.reader == nil {
		return 0, fmt.Errorf("file node %s: not open for reading", n.Name())
	}

	read := 0
	for read < count && read < len(out) {
		line, err := st.reader.ReadString('\n')
		if line == "" && err != nil {
			if _, seekErr := st.in.Seek(0, 0); seekErr != nil {
				return read, fmt.Errorf("rewind input file: %w", seekErr)
			}
			st.reader = bufio.NewReader(st.in)
			continue
		}
		s := out[read]
		if err := parseFileLine(line, s); err != nil {
			continue
		}
		read++
	}
	return read, nil
}

// Write appends one line per sample, flushing immediately (matching
// file_write's fflush after every write).
func (*FileType) Write(_ context.Context, n *Node, in []*sample.Sample, count int) (int, error) {
	st := n.State.(*fileState)
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.out == nil {
		return 0, fmt.Errorf("file node %s: not open for writing", n.Name())
	}

	written := 0
	for i := 0; i < count && i < len(in); i++ {
		if _, err := st.out.WriteString(formatFileLine(in[i])); err != nil {
			return written, fmt.Errorf("write sample: %w", err)
		}
		written++
	}
	if err := st.out.Sync(); err != nil {
		return written, fmt.Errorf("sync output file: %w", err)
	}
	return written, nil
}

func formatFileLine(s *sample.Sample) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d", s.Sequence)
	for i := 0; i < s.Length; i++ {
		v := s.Values[i]
		switch v.Kind {
		case sample.KindInt:
			fmt.Fprintf(&b, " %d", v.Int)
		case sample.KindFloat:
			fmt.Fprintf(&b, " %g", v.Float)
		case sample.KindBool:
			fmt.Fprintf(&b, " %t", v.Bool)
		case sample.KindComplex:
			fmt.Fprintf(&b, " %g", v.Complex)
		}
	}
	b.WriteByte('\n')
	return b.String()
}

func parseFileLine(line string, s *sample.Sample) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return fmt.Errorf("empty line")
	}
	seq, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid sequence: %w", err)
	}
	s.Sequence = seq

	n := len(fields) - 1
	if n > s.Capacity() {
		n = s.Capacity()
	}
	for i := 0; i < n; i++ {
		f, err := strconv.ParseFloat(fields[i+1], 64)
		if err != nil {
			return fmt.Errorf("invalid value at column %d: %w", i, err)
		}
		s.Values[i] = sample.FloatValue(f)
	}
	s.Length = n
	return nil
}
