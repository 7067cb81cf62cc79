// Package term paints frames onto the terminal with tcell, two vertical
// pixels per character cell.
package term

import (
	"github.com/gdamore/tcell/v2"

	"github.com/nacholabs/nacho/pkg/emu/display"
)

// Presenter renders frames on the controlling terminal
type Presenter struct {
	screen tcell.Screen
	width  int
	height int
}

func New() *Presenter {
	return &Presenter{}
}

// Init opens the terminal screen
func (p *Presenter) Init(width, height int) error {
	screen, err := tcell.NewScreen()
	if err != nil {
		return err
	}
	if err := screen.Init(); err != nil {
		return err
	}
	screen.Clear()

	p.screen = screen
	p.width = width
	p.height = height
	return nil
}

// Paint draws one frame scaled to the terminal size, using the upper half
// block glyph to pack two frame rows into every terminal row
func (p *Presenter) Paint(frame display.Frame) error {
	cols, rows := p.screen.Size()
	if cols <= 0 || rows <= 0 {
		return nil
	}

	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			top := p.sample(frame, col, row*2, cols, rows*2)
			bottom := p.sample(frame, col, row*2+1, cols, rows*2)

			style := tcell.StyleDefault.Foreground(top).Background(bottom)
			p.screen.SetContent(col, row, '▀', nil, style)
		}
	}

	p.screen.Show()
	return nil
}

// sample maps a terminal grid position to the nearest frame pixel
func (p *Presenter) sample(frame display.Frame, x, y, gridWidth, gridHeight int) tcell.Color {
	px := x * frame.Width / gridWidth
	py := y * frame.Height / gridHeight

	idx := (py*frame.Width + px) * 4
	if idx+2 >= len(frame.Pix) {
		return tcell.ColorBlack
	}

	return tcell.NewRGBColor(int32(frame.Pix[idx]), int32(frame.Pix[idx+1]), int32(frame.Pix[idx+2]))
}

// Close restores the terminal
func (p *Presenter) Close() error {
	if p.screen != nil {
		p.screen.Fini()
	}
	return nil
}
