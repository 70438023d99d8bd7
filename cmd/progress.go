package cmd

import (
	"github.com/creativeprojects/imapfilter/remote"
	"github.com/pterm/pterm"
)

type progresser struct {
	pbar *pterm.ProgressbarPrinter
}

func newProgresser(pbar *pterm.ProgressbarPrinter) *progresser {
	return &progresser{
		pbar: pbar,
	}
}

// startProgress displays a progress bar, unless running quietly
func startProgress(title string, total int) *progresser {
	if global.quiet {
		return newProgresser(nil)
	}
	pbar, _ := pterm.DefaultProgressbar.WithTotal(total).WithTitle(title).Start()
	return newProgresser(pbar)
}

func (p *progresser) Increment() {
	if p.pbar == nil {
		return
	}
	p.pbar.Increment()
}

func (p *progresser) Stop() {
	if p.pbar == nil {
		return
	}
	_, _ = p.pbar.Stop()
}

var _ remote.Progresser = (*progresser)(nil)
