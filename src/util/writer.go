package util

import (
	"bufio"
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"strings"
	"sync"
	"time"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// Writer buffers AT&T-syntax assembly text from a translation unit's pipeline run in a strings.Builder.
// When Flush or Close is called the buffer is emptied and sent to the designated output writer over channel c.
type Writer struct {
	sb strings.Builder
	c  chan string
}

// ---------------------
// ----- Constants -----
// ---------------------

var wc chan string     // Write channel used for receiving data from worker translation units.
var cc chan error      // Close channel used by the main thread to signal the write listener to stop.
var wg *sync.WaitGroup // Synchronises completion of all pending writes before the driver exits.

// ---------------------
// ----- Functions -----
// ---------------------

// Write writes a format string to the Writer's buffer.
func (w *Writer) Write(format string, args ...interface{}) {
	w.sb.WriteString(fmt.Sprintf(format, args...))
}

// WriteString writes a plain string to the Writer's buffer.
func (w *Writer) WriteString(s string) {
	w.sb.WriteString(s)
}

// Ins0 writes a zero-operand instruction, such as ret, cltd or cqto.
func (w *Writer) Ins0(op string) {
	w.sb.WriteString(fmt.Sprintf("\t%s\n", op))
}

// Ins1 writes a one-operand instruction, such as push, pop, idivl or an indirect call.
func (w *Writer) Ins1(op, operand string) {
	w.sb.WriteString(fmt.Sprintf("\t%s\t%s\n", op, operand))
}

// Ins2 writes a two-operand instruction in AT&T order: source first, destination second.
func (w *Writer) Ins2(op, src, dst string) {
	w.sb.WriteString(fmt.Sprintf("\t%s\t%s, %s\n", op, src, dst))
}

// Ins2imm writes a two-operand instruction whose source is an immediate, in AT&T order.
func (w *Writer) Ins2imm(op string, imm int64, dst string) {
	w.sb.WriteString(fmt.Sprintf("\t%s\t$%d, %s\n", op, imm, dst))
}

// Mem renders an AT&T memory operand: offset(%base), or offset(%base,%index,scale) if index is non-empty.
func Mem(offset int, base, index string, scale int) string {
	if len(index) == 0 {
		return fmt.Sprintf("%d(%%%s)", offset, base)
	}
	return fmt.Sprintf("%d(%%%s,%%%s,%d)", offset, base, index, scale)
}

// Label writes a one-line label with the given name.
func (w *Writer) Label(name string) {
	w.sb.WriteString(fmt.Sprintf("%s:\n", name))
}

// Directive writes an assembler directive line, e.g. ".align 8".
func (w *Writer) Directive(format string, args ...interface{}) {
	w.sb.WriteString(fmt.Sprintf("\t%s\n", fmt.Sprintf(format, args...)))
}

// Flush empties the Writer's buffer and sends the buffer data to the designated output writer over
// the Writer's channel. The send is counted on the wait group until the listener has written it out.
func (w *Writer) Flush() {
	wg.Add(1)
	w.c <- w.sb.String()
	w.sb = strings.Builder{}
}

// Close flushes the Writer's buffer and then signals completion to the driver's wait group.
func (w *Writer) Close() {
	w.Flush()
	w.c = nil
	wg.Done()
}

// NewWriter returns a new Writer for a single translation unit's pipeline run to emit assembly text into.
// Must not be called before the driver has called ListenWrite.
func NewWriter() Writer {
	wg.Add(1)
	return Writer{
		sb: strings.Builder{},
		c:  wc,
	}
}

// ReadSource reads the input IR/source from file or stdin. If Options.Src names a file, it is opened and
// read in full. Otherwise the function waits briefly for input on stdin before giving up.
func ReadSource(opt Options) (string, error) {
	if len(opt.Src) > 0 {
		b, err := ioutil.ReadFile(opt.Src)
		return string(b), err
	}

	c := make(chan string)
	cerr := make(chan error)

	go func(c chan string, cerr chan error) {
		defer close(c)
		defer close(cerr)
		reader := bufio.NewReader(os.Stdin)
		text, err := reader.ReadString(0)
		if err == nil {
			c <- text
		} else {
			cerr <- err
		}
	}(c, cerr)

	select {
	case <-time.After(500 * time.Millisecond):
		return "", errors.New("expected input from stdin, got none")
	case s := <-c:
		return s, nil
	}
}

// ListenWrite starts the write listener that serializes output from every translation unit's Writer to
// either file f, if non-nil, or stdout. It loops until Close is called, then writes out whatever is still
// queued before it stops.
func ListenWrite(opt Options, f *os.File, wgg *sync.WaitGroup) {
	wg = wgg
	if opt.Threads > 1 {
		wc = make(chan string, opt.Threads+1)
	} else {
		wc = make(chan string, 1)
	}
	cc = make(chan error, 1) // Buffered to catch Close before the listener goroutine is scheduled.

	var w *bufio.Writer
	if f != nil {
		w = bufio.NewWriter(f)
	} else {
		w = bufio.NewWriter(os.Stdout)
	}

	go func(wc chan string, cc chan error, wgg *sync.WaitGroup) {
		defer close(wc)
		defer close(cc)
		write := func(s string) {
			if _, err := w.WriteString(s); err != nil {
				fmt.Println(err)
			}
			if err := w.Flush(); err != nil {
				fmt.Println(err)
			}
			wgg.Done()
		}
		for {
			select {
			case s := <-wc:
				write(s)
			case <-cc:
				for {
					select {
					case s := <-wc:
						write(s)
					default:
						return
					}
				}
			}
		}
	}(wc, cc, wgg)
}

// Close sends the termination signal to the writer listener.
func Close() {
	cc <- nil
}
