package fetch

import (
	"io"
	"path"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// Progress receives per-file transfer updates from transports.
type Progress interface {
	// File starts tracking one file. size may be 0 when unknown; offset is
	// the number of bytes already present from an earlier attempt.
	File(repoID, name string, size, offset int64) FileProgress
}

// FileProgress tracks one file transfer.
type FileProgress interface {
	Reader(r io.Reader) io.Reader
	Finish(err error)
}

// NoProgress discards updates.
type NoProgress struct{}

func (NoProgress) File(string, string, int64, int64) FileProgress { return noFile{} }

type noFile struct{}

func (noFile) Reader(r io.Reader) io.Reader { return r }
func (noFile) Finish(error)                 {}

// BarProgress renders one progress bar per file.
type BarProgress struct {
	p *mpb.Progress
}

// NewBarProgress renders bars to w.
func NewBarProgress(w io.Writer) *BarProgress {
	return &BarProgress{p: mpb.New(mpb.WithOutput(w), mpb.WithWidth(48))}
}

func (b *BarProgress) File(repoID, name string, size, offset int64) FileProgress {
	label := path.Base(repoID) + "/" + name
	if len(label) > 40 {
		label = "…" + label[len(label)-39:]
	}
	bar := b.p.New(size,
		mpb.BarStyle().Rbound("|"),
		mpb.PrependDecorators(
			decor.Name(label+" "),
			decor.Counters(decor.SizeB1024(0), "% .2f / % .2f"),
		),
		mpb.AppendDecorators(
			decor.EwmaETA(decor.ET_STYLE_GO, 30),
			decor.Name(" ] "),
			decor.EwmaSpeed(decor.SizeB1024(0), "% .2f", 30),
		),
	)
	if offset > 0 {
		bar.SetCurrent(offset)
	}
	return &barFile{bar: bar}
}

// Wait blocks until every bar has completed or aborted.
func (b *BarProgress) Wait() { b.p.Wait() }

type barFile struct {
	bar *mpb.Bar
}

func (f *barFile) Reader(r io.Reader) io.Reader { return f.bar.ProxyReader(r) }

func (f *barFile) Finish(err error) {
	if err != nil {
		f.bar.Abort(false)
		return
	}
	f.bar.SetTotal(-1, true)
}
