package feed

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/text/unicode/norm"

	"github.com/jesmann/epgmerge/internal/application/dto"
)

// Elements are captured whole: every attribute lands in Attrs so the
// element can be reproduced verbatim, and Inner carries its raw content
type channelElem struct {
	Attrs []xml.Attr `xml:",any,attr"`
	Inner string     `xml:",innerxml"`
}

type programmeElem struct {
	Title string     `xml:"title"`
	Attrs []xml.Attr `xml:",any,attr"`
	Inner string     `xml:",innerxml"`
}

func attrValue(attrs []xml.Attr, name string) string {
	for _, a := range attrs {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

type programmeKey struct {
	channel string
	start   string
	title   string
}

// Merge streams the fetched sources into one gzipped XMLTV document.
// Channels in the selected set are kept on first occurrence; programmes are
// kept when their channel was kept and their (channel, start, title) key is
// unseen. The result's Output reader owns a working file that is removed on
// Close.
func (e *Engine) Merge(ctx context.Context, fetched *dto.FetchResult, req dto.MergeRequest) (*dto.MergeResult, error) {
	if err := e.fs.MkdirAll(e.workDir, 0o755); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	out, err := afero.TempFile(e.fs, e.workDir, ".merge-*")
	if err != nil {
		return nil, fmt.Errorf("create working file: %w", err)
	}
	outPath := out.Name()
	cleanup := func() {
		out.Close()
		e.fs.Remove(outPath)
	}

	gz := gzip.NewWriter(out)
	w := bufio.NewWriter(gz)

	keep := make(map[string]bool, len(req.Channels))
	for _, ch := range req.Channels {
		keep[norm.NFC.String(ch)] = true
	}
	channelsSeen := map[string]bool{}
	programmesSeen := map[programmeKey]bool{}

	w.WriteString(xml.Header)
	w.WriteString("<tv generator-info-name=\"epgmerge\">\n")

	for _, path := range fetched.Files {
		if err := ctx.Err(); err != nil {
			cleanup()
			return nil, err
		}
		if err := e.mergeFile(ctx, path, w, keep, channelsSeen, programmesSeen); err != nil {
			if ctx.Err() != nil {
				cleanup()
				return nil, ctx.Err()
			}
			// One unreadable source does not sink the merge
			e.warnLog("parsing %s: %v", path, err)
		}
	}

	w.WriteString("</tv>\n")
	if err := w.Flush(); err != nil {
		cleanup()
		return nil, fmt.Errorf("flush output: %w", err)
	}
	if err := gz.Close(); err != nil {
		cleanup()
		return nil, fmt.Errorf("close gzip stream: %w", err)
	}
	if err := out.Close(); err != nil {
		e.fs.Remove(outPath)
		return nil, err
	}

	info, err := e.fs.Stat(outPath)
	if err != nil {
		e.fs.Remove(outPath)
		return nil, err
	}
	r, err := e.fs.Open(outPath)
	if err != nil {
		e.fs.Remove(outPath)
		return nil, fmt.Errorf("reopen working file: %w", err)
	}

	e.infoLog("merge produced %d channels, %d programmes, %d bytes",
		len(channelsSeen), len(programmesSeen), info.Size())
	return &dto.MergeResult{
		Output:    &workingFileReader{File: r, fs: e.fs, path: outPath},
		Channels:  len(channelsSeen),
		Programs:  len(programmesSeen),
		SizeBytes: info.Size(),
	}, nil
}

func (e *Engine) mergeFile(
	ctx context.Context,
	path string,
	w *bufio.Writer,
	keep, channelsSeen map[string]bool,
	programmesSeen map[programmeKey]bool,
) error {
	f, err := e.fs.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var reader io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gr, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("gzip: %w", err)
		}
		defer gr.Close()
		reader = gr
	}

	dec := xml.NewDecoder(reader)
	elements := 0
	for {
		if elements%512 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		tok, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		elements++

		switch se.Name.Local {
		case "tv":
			// Root element, descend into it
		case "channel":
			var el channelElem
			if err := dec.DecodeElement(&el, &se); err != nil {
				return err
			}
			id := norm.NFC.String(attrValue(el.Attrs, "id"))
			if keep[id] && !channelsSeen[id] {
				channelsSeen[id] = true
				writeElement(w, "channel", el.Attrs, el.Inner)
			}
		case "programme":
			var el programmeElem
			if err := dec.DecodeElement(&el, &se); err != nil {
				return err
			}
			ch := norm.NFC.String(attrValue(el.Attrs, "channel"))
			if !channelsSeen[ch] {
				continue
			}
			key := programmeKey{channel: ch, start: attrValue(el.Attrs, "start"), title: el.Title}
			if programmesSeen[key] {
				continue
			}
			programmesSeen[key] = true
			writeElement(w, "programme", el.Attrs, el.Inner)
		default:
			if err := dec.Skip(); err != nil {
				return err
			}
		}
	}
}

// writeElement reproduces an element verbatim from its captured attributes
// and inner XML
func writeElement(w *bufio.Writer, name string, attrs []xml.Attr, inner string) {
	w.WriteByte('<')
	w.WriteString(name)
	for _, a := range attrs {
		w.WriteByte(' ')
		if a.Name.Space != "" {
			w.WriteString(a.Name.Space)
			w.WriteByte(':')
		}
		w.WriteString(a.Name.Local)
		w.WriteString(`="`)
		xml.EscapeText(w, []byte(a.Value))
		w.WriteByte('"')
	}
	w.WriteByte('>')
	w.WriteString(inner)
	w.WriteString("</")
	w.WriteString(name)
	w.WriteString(">\n")
}

// workingFileReader removes its backing file when closed
type workingFileReader struct {
	afero.File
	fs   afero.Fs
	path string
}

func (r *workingFileReader) Close() error {
	err := r.File.Close()
	if rmErr := r.fs.Remove(r.path); rmErr != nil && err == nil {
		err = rmErr
	}
	return err
}
