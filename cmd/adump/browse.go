package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/NKID00/aidb/store"
)

func browse(s *store.Store, table string) {
	var rows []string
	for r, err := range s.Scan(table) {
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		rows = append(rows, formatRow(r))
	}

	oldState, err := term.MakeRaw(int(os.Stdin.Fd()))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer term.Restore(int(os.Stdin.Fd()), oldState)

	v := &viewer{table: table, rows: rows}
	v.updateSize()

	fmt.Print("\033[?25l\033[2J")             // hide cursor, clear screen once
	defer fmt.Print("\033[?25h\033[2J\033[H") // show cursor, clear screen

	reader := bufio.NewReader(os.Stdin)

	for {
		v.updateSize()
		v.render()

		b, err := reader.ReadByte()
		if err != nil {
			break
		}

		v.status = "" // clear status on any input

		switch b {
		case 'q', 3, 27: // q, Ctrl+C, Esc
			if b == 27 && reader.Buffered() > 0 {
				// escape sequence
				b2, _ := reader.ReadByte()
				if b2 == '[' {
					b3, _ := reader.ReadByte()
					switch b3 {
					case 'A': // up
						v.scroll(-1)
					case 'B': // down
						v.scroll(1)
					case '5': // page up
						reader.ReadByte()
						v.scroll(-(v.lines() - 1))
					case '6': // page down
						reader.ReadByte()
						v.scroll(v.lines() - 1)
					}
				}
				continue
			}
			return
		case 'j':
			v.scroll(1)
		case 'k':
			v.scroll(-1)
		case 'g':
			v.offset = 0
		case 'G':
			v.offset = max(0, len(v.rows)-v.lines())
		case '/':
			v.search(reader)
		}
	}
}

type viewer struct {
	table  string
	rows   []string
	offset int
	width  int
	height int
	status string
}

func (v *viewer) updateSize() {
	w, h, err := term.GetSize(int(os.Stdin.Fd()))
	if err != nil {
		w, h = 80, 24
	}
	v.width, v.height = w, h
}

func (v *viewer) lines() int {
	return v.height - 4 // title + separator + separator + status
}

func (v *viewer) scroll(by int) {
	v.offset = max(0, min(v.offset+by, len(v.rows)-1))
}

func (v *viewer) search(reader *bufio.Reader) {
	// show search prompt
	fmt.Print("\033[?25h") // show cursor
	fmt.Printf("\033[%d;1H\033[K/", v.height)

	var input []byte
	for {
		b, err := reader.ReadByte()
		if err != nil {
			break
		}
		if b == 27 || b == 3 { // Esc or Ctrl+C
			fmt.Print("\033[?25l")
			v.status = ""
			return
		}
		if b == 13 || b == 10 { // Enter
			break
		}
		if b == 127 || b == 8 { // Backspace
			if len(input) > 0 {
				input = input[:len(input)-1]
				fmt.Print("\b \b")
			}
			continue
		}
		if b >= 32 && b < 127 {
			input = append(input, b)
			fmt.Print(string(b))
		}
	}
	fmt.Print("\033[?25l")

	if len(input) == 0 {
		v.status = ""
		return
	}

	needle := string(input)
	for i := v.offset; i < len(v.rows); i++ {
		if strings.Contains(v.rows[i], needle) {
			v.offset = i
			v.status = fmt.Sprintf("jumped to: %s", display(needle, 20))
			return
		}
	}
	v.status = "not found"
}

func (v *viewer) render() {
	var b strings.Builder

	// move to top (no clear)
	b.WriteString("\033[H")

	// header
	fmt.Fprintf(&b, "[ adump: %s, %d rows ]\033[K\r\n", v.table, len(v.rows))
	b.WriteString(strings.Repeat("─", v.width))
	b.WriteString("\033[K\r\n")

	lines := v.lines()
	for i := 0; i < lines; i++ {
		if at := v.offset + i; at < len(v.rows) {
			b.WriteString(display(v.rows[at], v.width))
		} else {
			b.WriteString("~")
		}
		b.WriteString("\033[K\r\n")
	}

	// footer
	b.WriteString(strings.Repeat("─", v.width))
	b.WriteString("\033[K\r\n")

	pos := ""
	if v.offset == 0 {
		pos = "[top]"
	}
	if v.offset+lines >= len(v.rows) {
		pos += "[end]"
	}

	if v.status != "" {
		fmt.Fprintf(&b, " %s %s", v.status, pos)
	} else {
		fmt.Fprintf(&b, " j/k:scroll g/G:jump /:search q:quit %s", pos)
	}
	b.WriteString("\033[K")

	fmt.Print(b.String())
}
