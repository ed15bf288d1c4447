package filter

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/edsrzf/mmap-go"
)

// Source produces the lines of a stream in order.
type Source interface {
	// Scan calls fn with consecutive batches of lines. first is the index of
	// the first line of the batch. Scan stops at the first error returned by
	// fn or when ctx is done.
	Scan(ctx context.Context, batchSize int, fn func(first int, lines []string) error) error
}

// ListSource is an in-memory source.
type ListSource []string

func (s ListSource) Scan(ctx context.Context, batchSize int, fn func(int, []string) error) error {
	for first := 0; first < len(s); first += batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(first+batchSize, len(s))
		if err := fn(first, s[first:end]); err != nil {
			return err
		}
	}
	return nil
}

// FileSource reads the lines of a file through a read-only memory map.
type FileSource struct {
	Path string
}

func (s FileSource) Scan(ctx context.Context, batchSize int, fn func(int, []string) error) error {
	f, err := os.Open(s.Path)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}
	// mmap of an empty file fails.
	if fi.Size() == 0 {
		return nil
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return fmt.Errorf("mmap source %s: %w", s.Path, err)
	}
	defer m.Unmap()

	return scanBytes(ctx, m, batchSize, fn)
}

func scanBytes(ctx context.Context, data []byte, batchSize int, fn func(int, []string) error) error {
	batch := make([]string, 0, batchSize)
	first := 0
	for len(data) > 0 {
		var line []byte
		if i := bytes.IndexByte(data, '\n'); i >= 0 {
			line, data = data[:i], data[i+1:]
		} else {
			line, data = data, nil
		}
		// The map is released when Scan returns, so lines are copied.
		batch = append(batch, string(bytes.TrimSuffix(line, []byte{'\r'})))
		if len(batch) == batchSize {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(first, batch); err != nil {
				return err
			}
			first += len(batch)
			batch = make([]string, 0, batchSize)
		}
	}
	if len(batch) > 0 {
		return fn(first, batch)
	}
	return nil
}

// ReaderSource reads lines from r, typically the stdout of a command.
type ReaderSource struct {
	R io.Reader
}

func (s ReaderSource) Scan(ctx context.Context, batchSize int, fn func(int, []string) error) error {
	sc := bufio.NewScanner(s.R)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	batch := make([]string, 0, batchSize)
	first := 0
	for sc.Scan() {
		batch = append(batch, sc.Text())
		if len(batch) == batchSize {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(first, batch); err != nil {
				return err
			}
			first += len(batch)
			batch = make([]string, 0, batchSize)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read source: %w", err)
	}
	if len(batch) > 0 {
		return fn(first, batch)
	}
	return nil
}

// CountLines returns the number of lines of the file at path.
func CountLines(path string) (int, error) {
	var n int
	err := FileSource{Path: path}.Scan(context.Background(), 4096, func(_ int, lines []string) error {
		n += len(lines)
		return nil
	})
	return n, err
}
