// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/vdrive/lib/clock"
	"github.com/bureau-foundation/vdrive/lib/codec"
	"github.com/bureau-foundation/vdrive/lib/vfs"
	"github.com/bureau-foundation/vdrive/lib/vpath"
)

// FormatName and FormatVersion identify the archive layout in its
// header.
const (
	FormatName    = "vdrive-archive"
	FormatVersion = 1
)

// DefaultChunkSize is the amount of file content compressed as one
// unit.
const DefaultChunkSize = 1 << 20

// ErrCorrupt is returned when an archive cannot be decoded: wrong
// magic, unknown record, truncated stream, or a content digest that
// does not match.
var ErrCorrupt = errors.New("corrupt archive")

// Header opens every archive.
type Header struct {
	Format  string `cbor:"format"`
	Version int    `cbor:"version"`

	// Created is when the archive was written, in Unix nanoseconds.
	Created int64 `cbor:"created"`

	// Name is the name of the archived directory, empty when the
	// drive root was archived.
	Name string `cbor:"name,omitempty"`

	Directories int   `cbor:"directories"`
	Files       int   `cbor:"files"`
	Bytes       int64 `cbor:"bytes"`
}

type kind uint8

const (
	kindDirectory kind = 1
	kindFile      kind = 2
	kindChunk     kind = 3
	kindEnd       kind = 4
)

// record is every item after the header. A file record is followed by
// its chunks and a closing chunk of size zero that carries the BLAKE3
// digest of the content.
type record struct {
	Kind        kind        `cbor:"kind"`
	Path        string      `cbor:"path,omitempty"`
	Created     int64       `cbor:"created,omitempty"`
	Modified    int64       `cbor:"modified,omitempty"`
	Length      int64       `cbor:"length,omitempty"`
	Compression Compression `cbor:"compression,omitempty"`
	Size        int         `cbor:"size,omitempty"`
	Data        []byte      `cbor:"data,omitempty"`
	Digest      []byte      `cbor:"digest,omitempty"`
}

// Options configures Create and Extract.
type Options struct {
	// Compression selects the chunk algorithm for Create. The zero
	// value stores chunks uncompressed; CompressionAuto chooses per
	// file.
	Compression Compression

	// ChunkSize is the uncompressed size of a chunk. Zero uses
	// DefaultChunkSize.
	ChunkSize int

	// Name overrides the name of the directory Extract creates. An
	// archive of the drive root has no name; without an override its
	// content is extracted straight into the target.
	Name string

	// Progress receives the share of content bytes processed.
	Progress vfs.Progress

	// Clock stamps the archive header. If nil, defaults to
	// clock.Real().
	Clock clock.Clock

	// Logger receives diagnostic messages. If nil, a no-op logger is
	// used.
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.Clock == nil {
		o.Clock = clock.Real()
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
}

func (o *Options) report(done, total int64) {
	if o.Progress == nil {
		return
	}
	if total <= 0 {
		o.Progress(100)
		return
	}
	o.Progress(float64(done) / float64(total) * 100)
}

// Summary counts what an archive operation processed.
type Summary struct {
	Directories int
	Files       int

	// Bytes is the file content processed, Stored what it occupies in
	// the archive after compression.
	Bytes  int64
	Stored int64
}

// Create writes source and everything below it to w. Directories are
// written before their content, breadth first, so Extract can create
// each parent before its children. The source is read through shared
// read streams: files open for writing elsewhere fail the archive with
// vfs.ErrAccessDenied.
func Create(ctx context.Context, w io.Writer, source *vfs.Directory, options Options) (Summary, error) {
	options.defaults()

	directories, files, err := scan(source)
	if err != nil {
		return Summary{}, err
	}
	header := Header{
		Format:      FormatName,
		Version:     FormatVersion,
		Created:     options.Clock.Now().UnixNano(),
		Name:        source.Name(),
		Directories: len(directories),
		Files:       len(files),
	}
	for _, file := range files {
		header.Bytes += file.Length()
	}

	encoder := codec.NewEncoder(w)
	if err := encoder.Encode(header); err != nil {
		return Summary{}, fmt.Errorf("writing archive header: %w", err)
	}

	top := source.Path()
	relative := func(path string) string {
		return vpath.Join(path[len(top):])
	}

	summary := Summary{Directories: len(directories)}
	for _, directory := range directories {
		if err := encoder.Encode(record{
			Kind:     kindDirectory,
			Path:     relative(directory.Path()),
			Created:  directory.Created().UnixNano(),
			Modified: directory.Modified().UnixNano(),
		}); err != nil {
			return summary, fmt.Errorf("writing directory record: %w", err)
		}
	}

	buffer := make([]byte, options.ChunkSize)
	for _, file := range files {
		if err := context.Cause(ctx); err != nil {
			return summary, err
		}
		stored, err := writeFile(ctx, encoder, file, relative(file.Path()), buffer, &options, func(done int64) {
			options.report(summary.Bytes+done, header.Bytes)
		})
		if err != nil {
			return summary, fmt.Errorf("archiving %s: %w", file.Path(), err)
		}
		summary.Files++
		summary.Bytes += file.Length()
		summary.Stored += stored
	}

	if err := encoder.Encode(record{Kind: kindEnd}); err != nil {
		return summary, fmt.Errorf("writing archive trailer: %w", err)
	}
	options.report(header.Bytes, header.Bytes)
	options.Logger.Info("archive created",
		"source", source.Path(),
		"directories", summary.Directories,
		"files", summary.Files,
		"bytes", summary.Bytes,
		"stored", summary.Stored,
	)
	return summary, nil
}

// scan lists the directories and files below top, breadth first.
func scan(top *vfs.Directory) ([]*vfs.Directory, []*vfs.File, error) {
	var directories []*vfs.Directory
	var files []*vfs.File
	queue := []*vfs.Directory{top}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		contained, err := current.Files()
		if err != nil {
			return nil, nil, err
		}
		files = append(files, contained...)
		nested, err := current.Directories()
		if err != nil {
			return nil, nil, err
		}
		directories = append(directories, nested...)
		queue = append(queue, nested...)
	}
	return directories, files, nil
}

func writeFile(ctx context.Context, encoder *codec.Encoder, file *vfs.File, path string, buffer []byte, options *Options, progress func(done int64)) (int64, error) {
	stream, err := file.Open(vfs.ModeOpen, vfs.AccessRead)
	if err != nil {
		return 0, err
	}
	defer stream.Close()

	length := stream.Length()
	if err := encoder.Encode(record{
		Kind:     kindFile,
		Path:     path,
		Created:  file.Created().UnixNano(),
		Modified: file.Modified().UnixNano(),
		Length:   length,
	}); err != nil {
		return 0, err
	}

	hasher := blake3.New()
	tag := options.Compression
	var done, stored int64
	for done < length {
		if err := context.Cause(ctx); err != nil {
			return stored, err
		}
		n, err := io.ReadFull(stream, buffer[:min(int64(len(buffer)), length-done)])
		if err != nil {
			return stored, err
		}
		chunk := buffer[:n]
		hasher.Write(chunk)
		if tag == CompressionAuto {
			tag = selectCompression(chunk)
		}

		chunkTag := tag
		data, err := compressChunk(chunk, tag)
		if errors.Is(err, errIncompressible) {
			data, chunkTag = chunk, CompressionNone
		} else if err != nil {
			return stored, err
		}
		if err := encoder.Encode(record{Kind: kindChunk, Compression: chunkTag, Size: n, Data: data}); err != nil {
			return stored, err
		}
		done += int64(n)
		stored += int64(len(data))
		progress(done)
	}
	return stored, encoder.Encode(record{Kind: kindChunk, Digest: hasher.Sum(nil)})
}

// reader decodes the record stream after the header.
type reader struct {
	decoder *codec.Decoder
}

func openReader(r io.Reader) (*reader, Header, error) {
	decoder := codec.NewDecoder(r)
	var header Header
	if err := decoder.Decode(&header); err != nil {
		return nil, header, fmt.Errorf("%w: reading header: %v", ErrCorrupt, err)
	}
	if header.Format != FormatName {
		return nil, header, fmt.Errorf("%w: format %q is not %s", ErrCorrupt, header.Format, FormatName)
	}
	if header.Version != FormatVersion {
		return nil, header, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, header.Version)
	}
	return &reader{decoder: decoder}, header, nil
}

func (r *reader) next() (record, error) {
	var item record
	if err := r.decoder.Decode(&item); err != nil {
		if errors.Is(err, io.EOF) {
			return item, fmt.Errorf("%w: truncated before the end record", ErrCorrupt)
		}
		return item, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return item, nil
}

// content reads the chunks of one file and passes each decompressed
// chunk to sink. The closing digest is checked against the content.
func (r *reader) content(file record, sink func([]byte) error) (stored int64, err error) {
	hasher := blake3.New()
	var done int64
	for {
		chunk, err := r.next()
		if err != nil {
			return stored, err
		}
		if chunk.Kind != kindChunk {
			return stored, fmt.Errorf("%w: %s: expected a chunk, found record kind %d", ErrCorrupt, file.Path, chunk.Kind)
		}
		if chunk.Size == 0 {
			if done != file.Length {
				return stored, fmt.Errorf("%w: %s: %d content bytes, header says %d", ErrCorrupt, file.Path, done, file.Length)
			}
			if !bytes.Equal(hasher.Sum(nil), chunk.Digest) {
				return stored, fmt.Errorf("%w: %s: content digest mismatch", ErrCorrupt, file.Path)
			}
			return stored, nil
		}
		if chunk.Size < 0 || done+int64(chunk.Size) > file.Length {
			return stored, fmt.Errorf("%w: %s: chunk overruns the file length", ErrCorrupt, file.Path)
		}
		data, err := decompressChunk(chunk.Data, chunk.Compression, chunk.Size)
		if err != nil {
			return stored, fmt.Errorf("%w: %s: %v", ErrCorrupt, file.Path, err)
		}
		hasher.Write(data)
		if err := sink(data); err != nil {
			return stored, err
		}
		done += int64(chunk.Size)
		stored += int64(len(chunk.Data))
	}
}

// Entry describes one item of an archive, as returned by List.
type Entry struct {
	Path      string
	Directory bool
	Created   time.Time
	Modified  time.Time
	Length    int64
	Stored    int64
}

// List decodes the archive in r without extracting it. Every chunk is
// decompressed and checked, so List doubles as a verification pass.
func List(r io.Reader) (Header, []Entry, error) {
	records, header, err := openReader(r)
	if err != nil {
		return header, nil, err
	}
	var entries []Entry
	for {
		item, err := records.next()
		if err != nil {
			return header, entries, err
		}
		switch item.Kind {
		case kindEnd:
			return header, entries, nil
		case kindDirectory, kindFile:
			entry := Entry{
				Path:      item.Path,
				Directory: item.Kind == kindDirectory,
				Created:   time.Unix(0, item.Created).UTC(),
				Modified:  time.Unix(0, item.Modified).UTC(),
				Length:    item.Length,
			}
			if item.Kind == kindFile {
				entry.Stored, err = records.content(item, func([]byte) error { return nil })
				if err != nil {
					return header, entries, err
				}
			}
			entries = append(entries, entry)
		default:
			return header, entries, fmt.Errorf("%w: unexpected record kind %d", ErrCorrupt, item.Kind)
		}
	}
}

// Extract recreates the archive in r inside target. The archived
// directory is created under its own name (or Options.Name); an
// archive of the drive root is unpacked straight into target. Any
// failure, cancellation included, removes what was extracted so far.
//
// The drive assigns fresh timestamps; the archived ones are only
// reported by List.
func Extract(ctx context.Context, r io.Reader, target *vfs.Directory, options Options) (Summary, error) {
	options.defaults()

	records, header, err := openReader(r)
	if err != nil {
		return Summary{}, err
	}

	name := options.Name
	if name == "" {
		name = header.Name
	}
	extraction := &extraction{top: target}
	if name != "" {
		top, err := target.CreateDirectory(name)
		if err != nil {
			return Summary{}, err
		}
		extraction.top = top
		extraction.owned = true
		extraction.created = append(extraction.created, top.Remove)
	}

	summary, err := extraction.run(ctx, records, header, &options)
	if err != nil {
		extraction.abandon(options.Logger)
		return summary, err
	}
	options.report(header.Bytes, header.Bytes)
	options.Logger.Info("archive extracted",
		"target", extraction.top.Path(),
		"directories", summary.Directories,
		"files", summary.Files,
		"bytes", summary.Bytes,
	)
	return summary, nil
}

type extraction struct {
	top *vfs.Directory

	// owned is set when top was created by the extraction, in which
	// case removing it undoes everything.
	owned bool

	// created holds removers for what was made directly in the
	// extraction target, undone on failure.
	created []func() error
}

func (e *extraction) run(ctx context.Context, records *reader, header Header, options *Options) (Summary, error) {
	var summary Summary
	directories := map[string]*vfs.Directory{"": e.top}

	parentOf := func(path string) (*vfs.Directory, error) {
		parent, ok := directories[vpath.Dir(path)]
		if !ok {
			return nil, fmt.Errorf("%w: %s precedes its directory", ErrCorrupt, path)
		}
		return parent, nil
	}
	remember := func(path string, remove func() error) {
		if !e.owned && vpath.Dir(path) == "" {
			e.created = append(e.created, remove)
		}
	}

	for {
		if err := context.Cause(ctx); err != nil {
			return summary, err
		}
		item, err := records.next()
		if err != nil {
			return summary, err
		}
		switch item.Kind {
		case kindEnd:
			return summary, nil

		case kindDirectory:
			parent, err := parentOf(item.Path)
			if err != nil {
				return summary, err
			}
			directory, err := parent.CreateDirectory(vpath.Base(item.Path))
			if err != nil {
				return summary, err
			}
			remember(item.Path, directory.Remove)
			directories[vpath.Clean(item.Path)] = directory
			summary.Directories++

		case kindFile:
			parent, err := parentOf(item.Path)
			if err != nil {
				return summary, err
			}
			file, err := parent.CreateFile(vpath.Base(item.Path))
			if err != nil {
				return summary, err
			}
			remember(item.Path, file.Remove)
			stored, err := e.fill(ctx, records, item, file, func(done int64) {
				options.report(summary.Bytes+done, header.Bytes)
			})
			if err != nil {
				return summary, err
			}
			summary.Files++
			summary.Bytes += item.Length
			summary.Stored += stored

		default:
			return summary, fmt.Errorf("%w: unexpected record kind %d", ErrCorrupt, item.Kind)
		}
	}
}

func (e *extraction) fill(ctx context.Context, records *reader, item record, file *vfs.File, progress func(done int64)) (int64, error) {
	stream, err := file.Open(vfs.ModeOpen, vfs.AccessWrite)
	if err != nil {
		return 0, err
	}
	defer stream.Close()
	var done int64
	return records.content(item, func(data []byte) error {
		if err := context.Cause(ctx); err != nil {
			return err
		}
		if _, err := stream.Write(data); err != nil {
			return err
		}
		done += int64(len(data))
		progress(done)
		return nil
	})
}

func (e *extraction) abandon(logger *slog.Logger) {
	for i := len(e.created) - 1; i >= 0; i-- {
		if err := e.created[i](); err != nil && !errors.Is(err, vfs.ErrNotFound) {
			logger.Warn("removing partial extraction", "error", err)
		}
	}
}
