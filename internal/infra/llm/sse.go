package llm

import (
	"bufio"
	"bytes"
	"io"
)

// The three streaming protocols differ only in framing. OpenAI-compatible
// endpoints send one `data: ...` line per event; Claude separates typed
// event blocks with a blank line; Ollama sends bare JSON objects one per
// line. Both decoders below read through bufio, so the decoded unit
// sequence is identical no matter how the transport fragments the bytes.

// lineDecoder yields one line at a time, stripped of trailing CR/LF.
// Serves the OpenAI SSE-line and Ollama NDJSON disciplines.
type lineDecoder struct {
	r *bufio.Reader
}

func newLineDecoder(r io.Reader) *lineDecoder {
	return &lineDecoder{r: bufio.NewReaderSize(r, 64*1024)}
}

func (d *lineDecoder) next() ([]byte, error) {
	line, err := d.r.ReadBytes('\n')
	line = bytes.TrimRight(line, "\r\n")
	if err != nil {
		// A partial trailing line still counts as a unit; EOF follows on
		// the next call.
		if err == io.EOF && len(line) > 0 {
			return line, nil
		}
		return nil, err
	}
	return line, nil
}

// blockDecoder yields one SSE event block at a time: consecutive non-empty
// lines up to a blank-line separator, re-joined with \n. Serves the Claude
// event discipline.
type blockDecoder struct {
	r *bufio.Reader
}

func newBlockDecoder(r io.Reader) *blockDecoder {
	return &blockDecoder{r: bufio.NewReaderSize(r, 64*1024)}
}

func (d *blockDecoder) next() ([]byte, error) {
	var lines [][]byte
	for {
		line, err := d.r.ReadBytes('\n')
		line = bytes.TrimRight(line, "\r\n")
		if err != nil {
			if len(line) > 0 {
				lines = append(lines, line)
			}
			if len(lines) > 0 {
				return bytes.Join(lines, []byte("\n")), nil
			}
			return nil, err
		}
		if len(line) == 0 {
			if len(lines) == 0 {
				continue
			}
			return bytes.Join(lines, []byte("\n")), nil
		}
		lines = append(lines, line)
	}
}

// sseData extracts the payload of a `data:` line, tolerating the optional
// space after the colon. Returns false for comments and other field names.
func sseData(line []byte) ([]byte, bool) {
	line = bytes.TrimSpace(line)
	if !bytes.HasPrefix(line, []byte("data:")) {
		return nil, false
	}
	payload := line[len("data:"):]
	if len(payload) > 0 && payload[0] == ' ' {
		payload = payload[1:]
	}
	return payload, true
}
