package traffic

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/devicelab-dev/tagscout/pkg/core"
)

const maxLineSize = 16 * 1024 * 1024

// LogResult is the outcome of reading a traffic log.
type LogResult struct {
	Records []Record
	Skipped int  // malformed lines
	Missing bool // the file does not exist
}

// ReadLog reads a traffic log. Line-delimited JSON and a single JSON array
// are both accepted; files ending in .zst are decompressed. A missing file is
// not an error and yields no records; other read failures are
// core.ErrLogUnreadable.
func ReadLog(path string) (LogResult, error) {
	f, err := os.Open(path) //#nosec G304 -- user-provided log file
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return LogResult{Missing: true}, nil
		}
		return LogResult{}, core.ErrLogUnreadable.WithCause(fmt.Errorf("open traffic log: %w", err))
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".zst") {
		dec, err := zstd.NewReader(f)
		if err != nil {
			return LogResult{}, core.ErrLogUnreadable.WithCause(fmt.Errorf("create zstd decoder: %w", err))
		}
		defer dec.Close()
		r = dec
	}

	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return LogResult{}, nil
		}
		return LogResult{}, core.ErrLogUnreadable.WithCause(fmt.Errorf("read traffic log: %w", err))
	}
	if first == '[' {
		return readArray(br)
	}
	return readLines(br)
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		if err := br.UnreadByte(); err != nil {
			return 0, err
		}
		return b, nil
	}
}

func readLines(r io.Reader) (LogResult, error) {
	var res LogResult

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			res.Skipped++
			continue
		}
		rec.Seq = len(res.Records)
		res.Records = append(res.Records, rec)
	}
	if err := scanner.Err(); err != nil {
		return res, core.ErrLogUnreadable.WithCause(fmt.Errorf("scan traffic log: %w", err))
	}
	return res, nil
}

func readArray(r io.Reader) (LogResult, error) {
	var raw []json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return LogResult{}, core.ErrLogUnreadable.WithCause(fmt.Errorf("decode traffic log: %w", err))
	}

	res := LogResult{Records: make([]Record, 0, len(raw))}
	for _, item := range raw {
		var rec Record
		if err := json.Unmarshal(item, &rec); err != nil {
			res.Skipped++
			continue
		}
		rec.Seq = len(res.Records)
		res.Records = append(res.Records, rec)
	}
	return res, nil
}
