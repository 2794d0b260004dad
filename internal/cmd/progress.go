package cmd

import (
	"os"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// barProgress renders ctrdecrypt.Progress tasks as stacked progress bars.
type barProgress struct {
	p    *mpb.Progress
	bars []*mpb.Bar
}

func newProgress() *barProgress {
	return &barProgress{
		p: mpb.New(
			mpb.WithWidth(60),
			mpb.WithRefreshRate(180*time.Millisecond),
			mpb.WithOutput(os.Stderr),
		),
	}
}

func (b *barProgress) Begin(task string, total int64) {
	bar := b.p.New(total,
		mpb.BarStyle().Lbound("[").Filler("=").Tip(">").Padding("-").Rbound("|"),
		mpb.PrependDecorators(
			decor.Name(task, decor.WCSyncSpaceR),
			decor.CountersKibiByte("% .2f / % .2f"),
		),
		mpb.AppendDecorators(
			decor.OnComplete(decor.AverageETA(decor.ET_STYLE_GO), "✅ "),
			decor.Name(" ] "),
			decor.AverageSpeed(decor.SizeB1024(0), "% .2f", decor.WCSyncWidth),
		),
		mpb.BarRemoveOnComplete(),
	)
	b.bars = append(b.bars, bar)
}

func (b *barProgress) Advance(current int64) {
	if len(b.bars) == 0 {
		return
	}
	b.bars[len(b.bars)-1].SetCurrent(current)
}

func (b *barProgress) End() {
	if len(b.bars) == 0 {
		return
	}
	bar := b.bars[len(b.bars)-1]
	b.bars = b.bars[:len(b.bars)-1]
	bar.SetTotal(-1, true)
}

// Wait for every bar to be rendered.
func (b *barProgress) Wait() {
	for len(b.bars) > 0 {
		b.End()
	}
	b.p.Wait()
}
