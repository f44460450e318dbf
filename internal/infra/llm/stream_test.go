package llm

import (
	"io"
	"strings"
	"testing"
)

// chunkedReader yields at most n bytes per Read to simulate transport
// fragmentation at arbitrary boundaries.
type chunkedReader struct {
	data []byte
	n    int
}

func (c *chunkedReader) Read(p []byte) (int, error) {
	if len(c.data) == 0 {
		return 0, io.EOF
	}
	n := c.n
	if n > len(c.data) {
		n = len(c.data)
	}
	if n > len(p) {
		n = len(p)
	}
	copy(p, c.data[:n])
	c.data = c.data[n:]
	return n, nil
}

func drainLines(t *testing.T, r io.Reader) []string {
	t.Helper()
	dec := newLineDecoder(r)
	var out []string
	for {
		line, err := dec.next()
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		out = append(out, string(line))
	}
}

func TestLineDecoderFragmentationInvariance(t *testing.T) {
	t.Parallel()

	input := "data: {\"a\":1}\r\ndata: {\"b\":2}\ndata: [DONE]\n"
	want := drainLines(t, strings.NewReader(input))

	for _, size := range []int{1, 2, 3, 7, 64} {
		got := drainLines(t, &chunkedReader{data: []byte(input), n: size})
		if len(got) != len(want) {
			t.Fatalf("size %d: got %d lines, want %d", size, len(got), len(want))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("size %d: line %d = %q, want %q", size, i, got[i], want[i])
			}
		}
	}
}

func TestLineDecoderPartialTrailingLine(t *testing.T) {
	t.Parallel()

	lines := drainLines(t, strings.NewReader("first\nsecond without newline"))
	if len(lines) != 2 || lines[1] != "second without newline" {
		t.Fatalf("got %q", lines)
	}
}

func TestBlockDecoderSplitsOnBlankLines(t *testing.T) {
	t.Parallel()

	input := "event: message_start\ndata: {}\n\nevent: ping\ndata: {}\n\n"
	dec := newBlockDecoder(strings.NewReader(input))

	first, err := dec.next()
	if err != nil {
		t.Fatalf("first block: %v", err)
	}
	if string(first) != "event: message_start\ndata: {}" {
		t.Errorf("first block = %q", first)
	}

	second, err := dec.next()
	if err != nil {
		t.Fatalf("second block: %v", err)
	}
	if string(second) != "event: ping\ndata: {}" {
		t.Errorf("second block = %q", second)
	}

	if _, err := dec.next(); err != io.EOF {
		t.Errorf("expected EOF, got %v", err)
	}
}

func TestBlockDecoderFragmentationInvariance(t *testing.T) {
	t.Parallel()

	input := "event: a\ndata: {\"x\":1}\n\nevent: b\ndata: {\"y\":2}\n\n"
	for _, size := range []int{1, 3, 5, 128} {
		dec := newBlockDecoder(&chunkedReader{data: []byte(input), n: size})
		var blocks []string
		for {
			b, err := dec.next()
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Fatalf("size %d: %v", size, err)
			}
			blocks = append(blocks, string(b))
		}
		if len(blocks) != 2 {
			t.Fatalf("size %d: got %d blocks, want 2", size, len(blocks))
		}
	}
}

func TestSSEData(t *testing.T) {
	t.Parallel()

	cases := []struct {
		line string
		want string
		ok   bool
	}{
		{"data: {\"a\":1}", "{\"a\":1}", true},
		{"data:{\"a\":1}", "{\"a\":1}", true},
		{"data: [DONE]", "[DONE]", true},
		{": keep-alive comment", "", false},
		{"event: ping", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := sseData([]byte(tc.line))
		if ok != tc.ok || string(got) != tc.want {
			t.Errorf("sseData(%q) = (%q, %v), want (%q, %v)", tc.line, got, ok, tc.want, tc.ok)
		}
	}
}

func TestSliceStreamExhaustsThenEOF(t *testing.T) {
	t.Parallel()

	s := newSliceStream([]StreamChunk{{Content: "a"}, {Content: "b", FinishReason: FinishStop}})
	first, err := s.Recv()
	if err != nil || first.Content != "a" {
		t.Fatalf("first = (%+v, %v)", first, err)
	}
	second, err := s.Recv()
	if err != nil || second.FinishReason != FinishStop {
		t.Fatalf("second = (%+v, %v)", second, err)
	}
	if _, err := s.Recv(); err != io.EOF {
		t.Errorf("expected EOF, got %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := s.Recv(); err != ErrStreamClosed {
		t.Errorf("after close: got %v, want ErrStreamClosed", err)
	}
}

func TestHTTPStreamCancelHaltsOnNextPoll(t *testing.T) {
	t.Parallel()

	body := io.NopCloser(strings.NewReader(
		"data: {\"choices\":[{\"delta\":{\"content\":\"hi\"}}]}\n" +
			"data: {\"choices\":[{\"delta\":{\"content\":\" there\"}}]}\n" +
			"data: [DONE]\n"))
	dec := newLineDecoder(body)

	flags := newCancelFlags()
	flag, release := flags.register("req-1")
	s := newHTTPStream("test", body, dec.next, parseOpenAIStreamLine).withCancel(flag, release)

	if chunk, err := s.Recv(); err != nil || chunk.Content != "hi" {
		t.Fatalf("first recv = (%+v, %v)", chunk, err)
	}

	flags.cancel("req-1")
	_, err := s.Recv()
	if !IsKind(err, ErrKindCancelled) {
		t.Fatalf("expected cancelled error, got %v", err)
	}
	// Flag must be released once the stream terminates.
	flags.mu.Lock()
	_, still := flags.flags["req-1"]
	flags.mu.Unlock()
	if still {
		t.Error("cancel flag not released after termination")
	}
	if _, err := s.Recv(); err != io.EOF {
		t.Errorf("after cancel: got %v, want EOF", err)
	}
}

func TestHTTPStreamSkipsMalformedUnits(t *testing.T) {
	t.Parallel()

	body := io.NopCloser(strings.NewReader(
		": comment\n" +
			"data: not json at all\n" +
			"data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n" +
			"data: [DONE]\n"))
	dec := newLineDecoder(body)
	s := newHTTPStream("test", body, dec.next, parseOpenAIStreamLine)

	chunk, err := s.Recv()
	if err != nil || chunk.Content != "ok" {
		t.Fatalf("recv = (%+v, %v)", chunk, err)
	}
	if _, err := s.Recv(); err != io.EOF {
		t.Errorf("expected EOF after [DONE], got %v", err)
	}
}

func TestCancelFlagsUnknownIDIsNoop(t *testing.T) {
	t.Parallel()

	flags := newCancelFlags()
	flags.cancel("never-registered")

	flag, release := flags.register("")
	defer release()
	flags.cancel("")
	if flag.Load() {
		t.Error("empty-id flag must be unreachable by cancel")
	}
}
